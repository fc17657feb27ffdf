// ABOUTME: serve and token subcommands: run the tree service over sqlite and mint identity tokens.
// ABOUTME: Handles signal-driven graceful shutdown of the HTTP server.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389-research/flowgraph/treeserver"
)

func runServe(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bind := fs.String("bind", a.cfg.Bind, "Listen address")
	dataDir := fs.String("data-dir", a.cfg.DataDir, "Database directory")
	allowRemote := fs.Bool("allow-remote", a.cfg.AllowRemote, "Permit non-loopback binds (requires FLOWGRAPH_JWT_SECRET)")
	if ok, code := a.parse(fs, args, 0, "[flags]"); !ok {
		return code
	}
	a.cfg.Bind = *bind
	a.cfg.DataDir = *dataDir
	a.cfg.AllowRemote = *allowRemote
	if err := a.cfg.Validate(); err != nil {
		return a.fail(err)
	}

	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return a.fail(fmt.Errorf("create data dir: %w", err))
	}
	db, err := treeserver.OpenDB(a.cfg.DatabasePath())
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = db.Close() }()

	var opts []treeserver.ServerOption
	switch {
	case a.cfg.JWTSecret != "":
		opts = append(opts, treeserver.WithSigningKey([]byte(a.cfg.JWTSecret)))
	case a.cfg.Token != "":
		opts = append(opts, treeserver.WithAuthToken(a.cfg.Token))
	}
	server := treeserver.NewServer(treeserver.NewService(db), opts...)

	// Set up context with signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(a.stderr, "\nInterrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	httpServer := &http.Server{
		Addr:              a.cfg.Bind,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(a.stderr, "flowgraph tree service listening on %s (db %s)\n", a.cfg.Bind, a.cfg.DatabasePath())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return a.fail(err)
	}
	return 0
}

func runToken(_ context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("for", a.cfg.User, "User id to put in the token subject")
	name := fs.String("name", "", "Display name claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if ok, code := a.parse(fs, args, 0, "[-for user] [-name name] [-ttl 24h]"); !ok {
		return code
	}
	if a.cfg.JWTSecret == "" {
		return a.fail(errors.New("FLOWGRAPH_JWT_SECRET is not set"))
	}
	tok, err := treeserver.IssueToken([]byte(a.cfg.JWTSecret), *user, *name, *ttl)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.stdout, tok)
	return 0
}
