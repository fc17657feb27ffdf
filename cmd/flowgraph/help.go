// ABOUTME: Help display for the flowgraph CLI with commands, global flags, examples, and environment status.
// ABOUTME: Provides printHelp for usage output and envStatus for configuration detection.

package main

import (
	"fmt"
	"io"
	"os"
)

// printHelp writes a formatted help message to w.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "flowgraph %s: versioned graph model editing against a tree service\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  flowgraph [global flags] <command> [flags] [args]")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Commands:")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-13s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Global Flags:")
	fmt.Fprintln(w, "  -config <file>   Config file (default: $XDG_CONFIG_HOME/flowgraph/config.yaml)")
	fmt.Fprintln(w, "  -server <url>    Tree service URL")
	fmt.Fprintln(w, "  -user <id>       User identity when no token is used")
	fmt.Fprintln(w, "  -token <token>   Bearer token")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  flowgraph serve -data-dir ./data")
	fmt.Fprintln(w, "  flowgraph create -type FOLDER Plants")
	fmt.Fprintln(w, "  flowgraph create -parent <folder-id> Boiler")
	fmt.Fprintln(w, "  flowgraph add-port -kind in <graph-id>")
	fmt.Fprintln(w, "  flowgraph connect <graph-id> <source-port> <destination-port>")
	fmt.Fprintln(w, "  flowgraph paste -from <graph-id> -x 40 -y 40 <graph-id> <element-id>")
	fmt.Fprintln(w, "  flowgraph ls 'Plants/**'")
	fmt.Fprintln(w, "  flowgraph export -format yaml <node-id>")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	for _, key := range []string{
		"FLOWGRAPH_SERVER_URL", "FLOWGRAPH_USER", "FLOWGRAPH_TOKEN",
		"FLOWGRAPH_BIND", "FLOWGRAPH_DATA_DIR", "FLOWGRAPH_JWT_SECRET", "FLOWGRAPH_ALLOW_REMOTE",
	} {
		fmt.Fprintf(w, "  %-23s %s\n", key, envStatus(key))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Variables in a .env file in the working directory or its parents are loaded too.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Docs: https://github.com/2389-research/flowgraph")
}

// envStatus returns "[set]" if the named environment variable is non-empty,
// or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}
