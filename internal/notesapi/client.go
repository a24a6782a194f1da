// Package notesapi is the HTTP client for the remote NoteHub notes service.
package notesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

const userAgent = "notehub-client/1.0"

// Notes is the set of remote operations the rest of the client depends on.
type Notes interface {
	ListNotes(ctx context.Context, params models.QueryParams) (models.PagedResult, error)
	CreateNote(ctx context.Context, draft models.FormDraft) (models.Note, error)
	DeleteNote(ctx context.Context, id string) (models.Note, error)
}

// Verify *Client satisfies Notes at compile time.
var _ Notes = (*Client)(nil)

// Config holds the process-wide connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Option is a functional option for the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client performs single-attempt calls against the notes API. Every request
// carries the bearer token and asks for JSON.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

// New builds a client. It fails with a ConfigError when the token or base
// URL is missing so misconfiguration surfaces at startup.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &apperr.ConfigError{Field: "api.token", Reason: "is required"}
	}
	if cfg.BaseURL == "" {
		return nil, &apperr.ConfigError{Field: "api.base_url", Reason: "is required"}
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &apperr.ConfigError{Field: "api.base_url", Reason: fmt.Sprintf("is not an absolute URL: %q", cfg.BaseURL)}
	}

	c := &Client{
		base:   base,
		token:  cfg.Token,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListNotes handles GET /notes.
func (c *Client) ListNotes(ctx context.Context, params models.QueryParams) (models.PagedResult, error) {
	const op = "list notes"
	var out models.PagedResult
	u := c.endpoint("notes")
	u.RawQuery = params.Values().Encode()

	resp, err := c.do(ctx, op, http.MethodGet, u, nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return out, &apperr.ServerError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := decodeBody(op, resp, &out, false); err != nil {
		return out, err
	}
	if out.Notes == nil {
		out.Notes = []models.Note{}
	}
	return out, nil
}

// CreateNote handles POST /notes. The draft is trimmed before sending.
func (c *Client) CreateNote(ctx context.Context, draft models.FormDraft) (models.Note, error) {
	const op = "create note"
	var out models.Note
	body, err := json.Marshal(draft.Payload())
	if err != nil {
		return out, fmt.Errorf("%s: encode body: %w", op, err)
	}

	resp, err := c.do(ctx, op, http.MethodPost, c.endpoint("notes"), body)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return out, &apperr.ValidationError{Message: errorMessage(resp.Body)}
	case resp.StatusCode/100 != 2:
		return out, &apperr.ServerError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := decodeBody(op, resp, &out, false); err != nil {
		return out, err
	}
	return out, nil
}

// DeleteNote handles DELETE /notes/{id} and returns the removed note.
func (c *Client) DeleteNote(ctx context.Context, id string) (models.Note, error) {
	const op = "delete note"
	var out models.Note
	if strings.TrimSpace(id) == "" {
		return out, &apperr.ValidationError{Fields: map[string]string{"id": "Id is required"}}
	}

	resp, err := c.do(ctx, op, http.MethodDelete, c.endpoint("notes", id), nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return out, &apperr.NotFoundError{ID: id}
	case resp.StatusCode/100 != 2:
		return out, &apperr.ServerError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := decodeBody(op, resp, &out, true); err != nil {
		return out, err
	}
	return out, nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	return &u
}

func (c *Client) do(ctx context.Context, op, method string, u *url.URL, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("notesapi: request failed",
			slog.String("op", op),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}
	c.logger.Debug("notesapi: request done",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("url", u.Redacted()),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", reqID),
		slog.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// decodeBody reads a 2xx body into v. A body cut off in transit is a
// NetworkError; a complete body that is not valid JSON is a ServerError.
func decodeBody(op string, resp *http.Response, v any, allowEmpty bool) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if allowEmpty && len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &apperr.ServerError{Op: op, Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body of the
// form {"message": ...} or {"error": ...}, falling back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
