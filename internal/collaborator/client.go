// Package collaborator is the client for the external answer service: the
// streamed query endpoint, the upload endpoint and the listen socket.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liliang-cn/doclens/internal/config"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/stream"
	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

// APIError is a non-OK response from the answer service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("answer service returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the answer service
type Client struct {
	cfg      config.CollaboratorConfig
	baseURL  *url.URL
	logger   *zap.Logger
	observer stream.Observer

	// streams has no timeout: answers stream for as long as they take
	streams *http.Client
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a new answer service client
func NewClient(cfg config.CollaboratorConfig, logger *zap.Logger, observer stream.Observer) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid collaborator base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid collaborator base url scheme %q", base.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg:      cfg,
		baseURL:  base,
		logger:   logger,
		observer: observer,
		streams:  &http.Client{},
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// Query sends req and emits the decoded answer stream in arrival order.
// Network failures wrap domain.ErrUnavailable; non-OK responses are *APIError.
func (c *Client) Query(ctx context.Context, req domain.QueryRequest, emit func(domain.StreamEvent) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.QueryPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create query request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streams.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	decoder := stream.NewDecoder(
		stream.WithLogger(c.logger),
		stream.WithObserver(c.observer),
		stream.WithReadBufferSize(c.cfg.ReadBufferSize),
	)

	var emitErr error
	err = decoder.Decode(ctx, resp.Body, func(ev domain.StreamEvent) error {
		emitErr = emit(ev)
		return emitErr
	})
	switch {
	case err == nil:
		return nil
	case emitErr != nil:
		return emitErr
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
}

// UploadFile forwards a file as the multipart field "file"
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.UploadPath), pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		pr.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

// Listen opens the live transcription socket
func (c *Client) Listen(ctx context.Context) (*ListenConn, error) {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.cfg.ListenPath

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, readAPIError(resp)
			}
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return newListenConn(conn, c.logger), nil
}

// readAPIError builds an APIError using the service's error text when it
// sends one as {"error"|"detail"|"message": "..."} or as a plain body.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"error", "detail", "message"} {
			if s, ok := fields[key].(string); ok && s != "" {
				apiErr.Message = s
				return apiErr
			}
		}
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
