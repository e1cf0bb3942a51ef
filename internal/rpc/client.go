package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jward/binscope"
	"github.com/jward/binscope/internal/archive"
	"github.com/jward/binscope/internal/projection"
)

// Client calls a binscope server. Its query methods mirror
// binscope.Service, so a Client can stand in for a local service.
type Client struct {
	url  string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient returns a Client for the server at url. A bare host:port is
// treated as http.
func NewClient(url string, opts ...ClientOption) *Client {
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes method with named params and decodes the result into out,
// which may be nil. Numbers decoded into interface values are
// json.Number. A server-side failure is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, out any) error {
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return err
	}
	req := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  map[string]any  `json:"params,omitempty"`
	}{Version, id, method, params}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: encode %s: %w", method, err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	defer hresp.Body.Close()

	if hresp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(hresp.Body, 512))
		return fmt.Errorf("rpc: %s: http %s: %s", method, hresp.Status, strings.TrimSpace(string(msg)))
	}

	var resp Response
	if err := json.NewDecoder(hresp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("rpc: %s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Result))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("rpc: %s: decode result: %w", method, err)
	}
	return nil
}

// SayHello checks that the server is alive.
func (c *Client) SayHello(ctx context.Context) (string, error) {
	var s string
	err := c.Call(ctx, MethodSayHello, nil, &s)
	return s, err
}

// CreateDocument uploads data under name. The server answers with
// DocumentAdded once the document is loaded and translated.
func (c *Client) CreateDocument(ctx context.Context, name string, data []byte) (string, error) {
	ints := make([]int, len(data))
	for i, b := range data {
		ints[i] = int(b)
	}
	var s string
	err := c.Call(ctx, MethodDocumentNew, map[string]any{"name": name, "bytes": ints}, &s)
	return s, err
}

// Translations returns the archived translation history of a document.
func (c *Client) Translations(ctx context.Context, name string) ([]*archive.Translation, error) {
	var out []*archive.Translation
	err := c.Call(ctx, MethodTranslations, map[string]any{"document-name": name}, &out)
	return out, err
}

// The methods below have no context parameter so that a Client satisfies
// the same query interface as a binscope.Service.

// ListDocuments lists document names.
func (c *Client) ListDocuments() ([]string, error) {
	var out []string
	err := c.Call(context.Background(), MethodDocuments, nil, &out)
	return out, err
}

// ListFunctions lists the functions of a document.
func (c *Client) ListFunctions(name string) ([]binscope.FunctionInfo, error) {
	var out []binscope.FunctionInfo
	err := c.Call(context.Background(), MethodDocumentFunctions, map[string]any{"document-name": name}, &out)
	return out, err
}

// XRefs returns a document's projected cross-reference index.
func (c *Client) XRefs(name string) (projection.Node, error) {
	var out projection.Node
	err := c.Call(context.Background(), MethodDocumentXRefs, map[string]any{"document-name": name}, &out)
	return out, err
}

// FunctionName returns the name of a function.
func (c *Client) FunctionName(name string, index int) (string, error) {
	var out string
	err := c.Call(context.Background(), MethodFunctionName, map[string]any{
		"document-name":  name,
		"function-index": index,
	}, &out)
	return out, err
}

// FunctionIR returns a projected function.
func (c *Client) FunctionIR(name string, index int) (projection.Node, error) {
	var out projection.Node
	err := c.Call(context.Background(), MethodFunctionIR, map[string]any{
		"document-name":  name,
		"function-index": index,
	}, &out)
	return out, err
}

// ResolveAddress returns the projected location of the instruction at
// addr, or nil.
func (c *Client) ResolveAddress(name string, addr uint64) (projection.Node, error) {
	var out projection.Node
	err := c.Call(context.Background(), MethodInstructionAt, map[string]any{
		"document-name": name,
		"address":       addr,
	}, &out)
	return out, err
}

// FindCallsToSymbol returns the projected locations of calls to symbol.
func (c *Client) FindCallsToSymbol(name, symbol string) ([]projection.Node, error) {
	var out []projection.Node
	err := c.Call(context.Background(), MethodCallsToSymbol, map[string]any{
		"document-name": name,
		"symbol":        symbol,
	}, &out)
	if out == nil && err == nil {
		out = []projection.Node{}
	}
	return out, err
}
