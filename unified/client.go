package unified

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("unified-backend/unified")

// Client talks to the Unified.to API. It never retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func NewClient(settings config.PlatformSettings) *Client {
	return NewClientWithHTTP(settings, &http.Client{Timeout: settings.Timeout})
}

// NewClientWithHTTP lets callers supply their own transport, e.g. an httptest server client.
func NewClientWithHTTP(settings config.PlatformSettings, httpClient *http.Client) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultUnifiedBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  settings.APIKey,
		http:    httpClient,
	}
}

// Path builds /{category}/{connectionID}/{resource}, escaping every segment.
func Path(category, connectionID, resource string) string {
	segments := []string{url.PathEscape(category), url.PathEscape(connectionID)}
	for _, s := range strings.Split(strings.Trim(resource, "/"), "/") {
		if s != "" {
			segments = append(segments, url.PathEscape(s))
		}
	}
	return "/" + strings.Join(segments, "/")
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, invalidRequest("encode request body: %v", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	ctx, span := tracer.Start(ctx, "unified "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("unified.path", path),
	)
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		span.SetAttributes(attribute.String("correlation_id", cid))
	}
	if conn, ok := utils.GetConnectionIdFromContext(ctx); ok {
		span.SetAttributes(attribute.String("unified.sync_connection_id", conn))
	}
	if platform, ok := utils.GetPlatformFromContext(ctx); ok {
		span.SetAttributes(attribute.String("unified.platform", platform))
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, transportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, transportError(fmt.Errorf("read response body: %w", err))
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
