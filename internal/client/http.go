package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

// HTTPClient implements GateClient using the gatekeep HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// endpoint maps a document path onto its REST route.
func endpoint(path string) (string, docstore.Path, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return "", p, err
	}
	route := "/v1/gates"
	if p.GateID != "" {
		route += "/" + url.PathEscape(p.GateID)
	}
	if p.Kind == docstore.KindUsers || p.Kind == docstore.KindUser {
		route += "/users"
	}
	if p.UserID != "" {
		route += "/" + url.PathEscape(p.UserID)
	}
	return route, p, nil
}

// --- docstore.Reader ---

func (c *HTTPClient) Get(ctx context.Context, path string) (*docstore.Document, error) {
	route, p, err := endpoint(path)
	if err != nil {
		return nil, err
	}
	if p.IsCollection() {
		return nil, fmt.Errorf("%w: %s is a collection", docstore.ErrInvalidPath, path)
	}
	var doc docstore.Document
	if err := c.doJSON(ctx, http.MethodGet, route, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) List(ctx context.Context, path string) (*docstore.Collection, error) {
	route, p, err := endpoint(path)
	if err != nil {
		return nil, err
	}
	if !p.IsCollection() {
		return nil, fmt.Errorf("%w: %s is a document", docstore.ErrInvalidPath, path)
	}
	var col docstore.Collection
	if err := c.doJSON(ctx, http.MethodGet, route, nil, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// --- docstore.Writer ---

func (c *HTTPClient) Update(ctx context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return c.writeDoc(ctx, http.MethodPatch, path, fields)
}

func (c *HTTPClient) Set(ctx context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return c.writeDoc(ctx, http.MethodPut, path, fields)
}

func (c *HTTPClient) writeDoc(ctx context.Context, method, path string, fields map[string]any) (*docstore.Document, error) {
	route, p, err := endpoint(path)
	if err != nil {
		return nil, err
	}
	if p.IsCollection() {
		return nil, fmt.Errorf("%w: cannot write to collection %s", docstore.ErrInvalidPath, path)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	var doc docstore.Document
	if err := c.doJSON(ctx, method, route, fields, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) Delete(ctx context.Context, path string) (int64, error) {
	route, p, err := endpoint(path)
	if err != nil {
		return 0, err
	}
	if p.Kind == docstore.KindGates {
		return 0, fmt.Errorf("%w: cannot delete %s", docstore.ErrInvalidPath, path)
	}
	var resp struct {
		Revision int64 `json:"revision"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, route, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Revision, nil
}

// --- server extras ---

func (c *HTTPClient) CreateUser(ctx context.Context, gateID string, fields map[string]any) (*docstore.Document, error) {
	route, _, err := endpoint(docstore.UsersPath(gateID))
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	var doc docstore.Document
	if err := c.doJSON(ctx, http.MethodPost, route, fields, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) ResolveBlob(ctx context.Context, path string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/blobs/url?path="+url.QueryEscape(path), nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps status codes back onto the document store sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return docstore.ErrNotFound
	default:
		return nil
	}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
