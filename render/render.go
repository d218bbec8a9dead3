// Package render turns markup into HTML. Renderers are stateless and may be
// slow; nothing here orders concurrent calls.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var ErrUpstream = errors.New("render: upstream error")

// Renderer converts markup text to formatted output.
type Renderer interface {
	Render(ctx context.Context, markup string) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, markup string) (string, error)

func (f RendererFunc) Render(ctx context.Context, markup string) (string, error) {
	return f(ctx, markup)
}

// Markdown renders CommonMark plus GitHub extensions in process.
type Markdown struct {
	md goldmark.Markdown
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

func (m *Markdown) Render(ctx context.Context, markup string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(markup), &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return buf.String(), nil
}

// HTTPClient posts markup to a remote render endpoint and returns the body,
// e.g. the server's /app/markdown.
type HTTPClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{url: url, client: client}
}

func (c *HTTPClient) Render(ctx context.Context, markup string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("render: request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("render: post: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("render: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: %s", ErrUpstream, resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
