// ABOUTME: HTTP client for the versioned tree service.
// ABOUTME: Every call takes a context, unwraps the {data} envelope, and classifies failures.

package treeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2389-research/flowgraph/patch"
	"github.com/2389-research/flowgraph/tree"
)

// UserHeader carries the caller identity when no bearer token is used.
const UserHeader = "X-Flowgraph-User"

// Client talks to one tree service.
type Client struct {
	BaseURL    string
	Token      string
	User       string
	HTTPClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithUser identifies the caller through the user header.
func WithUser(user string) Option {
	return func(c *Client) { c.User = user }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HistoryEntry is one committed version of a node.
type HistoryEntry struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"nodeId"`
	Version   int64     `json:"version"`
	Digest    string    `json:"digest"`
	Comment   string    `json:"comment,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TreeQuery selects part of the tree.
type TreeQuery struct {
	Sparse  bool
	Depth   int
	Trashed bool
}

// Tree lists root and its descendants down to q.Depth levels (0 means unlimited).
func (c *Client) Tree(ctx context.Context, root string, q TreeQuery) ([]*tree.Node, error) {
	params := url.Values{}
	params.Set("sparse", strconv.FormatBool(q.Sparse))
	if q.Depth > 0 {
		params.Set("depth", strconv.Itoa(q.Depth))
	}
	if q.Trashed {
		params.Set("trashed", "true")
	}
	var nodes []*tree.Node
	if err := c.do(ctx, http.MethodGet, "/tree/"+url.PathEscape(root), params, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Node fetches one node with its content.
func (c *Client) Node(ctx context.Context, id string) (*tree.Node, error) {
	nodes, err := c.Tree(ctx, id, TreeQuery{Depth: 1})
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, &Error{Kind: NetworkFailure, Status: http.StatusNotFound, Message: "node " + id + " missing from response"}
}

// Create stores a new node and returns the server's copy.
func (c *Client) Create(ctx context.Context, n *tree.Node) (*tree.Node, error) {
	var out tree.Node
	if err := c.do(ctx, http.MethodPost, "/tree", nil, n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Patch applies a structural content patch, null-marking deletions on the way out.
// A nil version skips the optimistic lock.
func (c *Client) Patch(ctx context.Context, id string, p patch.Patch, version *int64) (*tree.Node, error) {
	var out tree.Node
	if err := c.do(ctx, http.MethodPatch, "/tree/"+url.PathEscape(id)+"/patchContent", versionParams(version), patch.Build(p), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the node. Sparse updates leave the stored content untouched. A nil
// version skips the optimistic lock.
func (c *Client) Update(ctx context.Context, n *tree.Node, version *int64, sparse bool) (*tree.Node, error) {
	params := versionParams(version)
	params.Set("sparse", strconv.FormatBool(sparse))
	body := n
	if sparse {
		body = n.Clone()
		body.Content = nil
	}
	var out tree.Node
	if err := c.do(ctx, http.MethodPut, "/tree/"+url.PathEscape(n.ID), params, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trash soft-deletes id and its descendants, returning every trashed id.
func (c *Client) Trash(ctx context.Context, id string, version *int64) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodDelete, "/tree/"+url.PathEscape(id), versionParams(version), nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Recover restores a trashed node.
func (c *Client) Recover(ctx context.Context, id string) (*tree.Node, error) {
	var out tree.Node
	if err := c.do(ctx, http.MethodPost, "/tree/"+url.PathEscape(id)+"/recover", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Copy duplicates id at version under parentID and returns the new node.
func (c *Client) Copy(ctx context.Context, id string, version int64, parentID string) (*tree.Node, error) {
	params := url.Values{}
	params.Set("v", strconv.FormatInt(version, 10))
	params.Set("parentId", parentID)
	var out tree.Node
	if err := c.do(ctx, http.MethodPost, "/tree/"+url.PathEscape(id)+"/copyNode", params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists the committed versions of id, newest first.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/tree/"+url.PathEscape(id)+"/history", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CommentVersion attaches a comment to one committed version.
func (c *Client) CommentVersion(ctx context.Context, id string, version int64, comment string) (*HistoryEntry, error) {
	params := url.Values{}
	params.Set("version", strconv.FormatInt(version, 10))
	var out HistoryEntry
	body := map[string]string{"comment": comment}
	if err := c.do(ctx, http.MethodPut, "/tree/"+url.PathEscape(id)+"/history", params, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func versionParams(version *int64) url.Values {
	params := url.Values{}
	if version != nil {
		params.Set("v", strconv.FormatInt(*version, 10))
	}
	return params
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	target := c.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.User != "" {
		req.Header.Set(UserHeader, c.User)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &Error{Kind: NetworkFailure, Message: method + " " + path, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: NetworkFailure, Status: resp.StatusCode, Message: "reading response", Cause: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Kind: KindFromStatus(resp.StatusCode), Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &Error{Kind: NetworkFailure, Status: resp.StatusCode, Message: "decoding response", Cause: decodeErr}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: NetworkFailure, Status: resp.StatusCode, Message: "decoding data", Cause: err}
	}
	return nil
}
