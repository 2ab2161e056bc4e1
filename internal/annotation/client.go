package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// MaxRetries bounds content fetch attempts after the first failure.
const MaxRetries = 3

// StatusError is a non-success response from the backend.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Body)
}

// Retryable reports whether repeating the request may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Client communicates with the materials HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. requestsPerSecond <= 0 disables throttling.
func NewClient(baseURL, apiKey string, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 5),
	}
}

func (c *Client) materialsURL(notebookID string, parts ...string) string {
	u := c.baseURL + "/api/notebooks/" + url.PathEscape(notebookID) + "/materials"
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// do sends one request and checks the status. The caller closes the body.
func (c *Client) do(ctx context.Context, op, method, u string, body io.Reader, contentType string, want ...int) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, code := range want {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
}

func (c *Client) doJSON(ctx context.Context, op, method, u string, in, out any, want ...int) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	resp, err := c.do(ctx, op, method, u, body, contentType, want...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

// Upload sends a document to the notebook.
func (c *Client) Upload(ctx context.Context, notebookID, filename, title string, r io.Reader) (Material, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Material{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return Material{}, fmt.Errorf("copy upload: %w", err)
	}
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			return Material{}, fmt.Errorf("write title: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Material{}, fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.do(ctx, "upload material", http.MethodPost, c.materialsURL(notebookID, "upload"), &buf, mw.FormDataContentType(), http.StatusCreated, http.StatusOK)
	if err != nil {
		return Material{}, err
	}
	defer resp.Body.Close()
	var m Material
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Material{}, fmt.Errorf("decode material: %w", err)
	}
	return m, nil
}

// ListMaterials returns every material in the notebook.
func (c *Client) ListMaterials(ctx context.Context, notebookID string) ([]Material, error) {
	var out []Material
	err := c.doJSON(ctx, "list materials", http.MethodGet, c.materialsURL(notebookID), nil, &out, http.StatusOK)
	return out, err
}

// GetMaterial fetches one material's metadata.
func (c *Client) GetMaterial(ctx context.Context, notebookID, materialID string) (Material, error) {
	var m Material
	err := c.doJSON(ctx, "get material "+materialID, http.MethodGet, c.materialsURL(notebookID, materialID), nil, &m, http.StatusOK)
	return m, err
}

// DeleteMaterial removes a material and its highlights.
func (c *Client) DeleteMaterial(ctx context.Context, notebookID, materialID string) error {
	return c.doJSON(ctx, "delete material "+materialID, http.MethodDelete, c.materialsURL(notebookID, materialID), nil, nil, http.StatusNoContent, http.StatusOK)
}

// FetchContent downloads the raw bytes of a material, retrying transient
// failures until ctx ends.
func (c *Client) FetchContent(ctx context.Context, notebookID, materialID string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(Backoff(attempt - 1)):
			}
		}
		data, err := c.fetchContentOnce(ctx, notebookID, materialID)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch content %s: retries exhausted: %w", materialID, lastErr)
}

func (c *Client) fetchContentOnce(ctx context.Context, notebookID, materialID string) ([]byte, error) {
	resp, err := c.do(ctx, "fetch content "+materialID, http.MethodGet, c.materialsURL(notebookID, materialID, "content"), nil, "", http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", materialID, err)
	}
	return data, nil
}

// ListHighlights returns a material's highlights ordered by creation.
func (c *Client) ListHighlights(ctx context.Context, notebookID, materialID string) ([]Highlight, error) {
	var out []Highlight
	err := c.doJSON(ctx, "list highlights", http.MethodGet, c.materialsURL(notebookID, materialID, "highlights"), nil, &out, http.StatusOK)
	return out, err
}

// CreateHighlight persists a new highlight.
func (c *Client) CreateHighlight(ctx context.Context, notebookID, materialID string, req CreateRequest) (Highlight, error) {
	var h Highlight
	err := c.doJSON(ctx, "create highlight", http.MethodPost, c.materialsURL(notebookID, materialID, "highlights"), req, &h, http.StatusCreated, http.StatusOK)
	return h, err
}

// UpdateHighlight applies a partial update.
func (c *Client) UpdateHighlight(ctx context.Context, notebookID, materialID, id string, u Update) (Highlight, error) {
	var h Highlight
	err := c.doJSON(ctx, "update highlight "+id, http.MethodPatch, c.materialsURL(notebookID, materialID, "highlights", id), u, &h, http.StatusOK)
	return h, err
}

// DeleteHighlight removes a highlight.
func (c *Client) DeleteHighlight(ctx context.Context, notebookID, materialID, id string) error {
	return c.doJSON(ctx, "delete highlight "+id, http.MethodDelete, c.materialsURL(notebookID, materialID, "highlights", id), nil, nil, http.StatusNoContent, http.StatusOK)
}

// Highlights binds the client to one material as a Backend.
func (c *Client) Highlights(notebookID, materialID string) Backend {
	return &materialBackend{c: c, notebookID: notebookID, materialID: materialID}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type materialBackend struct {
	c          *Client
	notebookID string
	materialID string
}

func (b *materialBackend) List(ctx context.Context) ([]Highlight, error) {
	return b.c.ListHighlights(ctx, b.notebookID, b.materialID)
}

func (b *materialBackend) Create(ctx context.Context, req CreateRequest) (Highlight, error) {
	return b.c.CreateHighlight(ctx, b.notebookID, b.materialID, req)
}

func (b *materialBackend) Update(ctx context.Context, id string, u Update) (Highlight, error) {
	return b.c.UpdateHighlight(ctx, b.notebookID, b.materialID, id, u)
}

func (b *materialBackend) Delete(ctx context.Context, id string) error {
	return b.c.DeleteHighlight(ctx, b.notebookID, b.materialID, id)
}
