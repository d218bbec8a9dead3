package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collabwiki/docs"
)

var errNoPage = errors.New("page not found")

// pageClient talks to the server's page api.
type pageClient struct {
	base   string
	client string
	http   *http.Client
}

func newPageClient(base string, client string) *pageClient {
	return &pageClient{
		base:   strings.TrimSuffix(base, "/"),
		client: client,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type pageResponse struct {
	Success bool       `json:"success"`
	Page    *docs.Page `json:"page"`
	Error   string     `json:"error"`
}

func (c *pageClient) do(ctx context.Context, method string, path string, body any, out *pageResponse) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", c.client)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %s: %w", method, path, resp.Status, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return errNoPage
	}
	if !out.Success {
		return fmt.Errorf("%s %s: %s", method, path, out.Error)
	}
	return nil
}

func (c *pageClient) Get(ctx context.Context, id string) (*docs.Page, error) {
	var out pageResponse
	if err := c.do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Page, nil
}

func (c *pageClient) Save(ctx context.Context, id string, markup string) error {
	body := map[string]string{"markdown": markup, "client": c.client}
	var out pageResponse
	return c.do(ctx, http.MethodPut, "/api/pages/"+url.PathEscape(id), body, &out)
}

// socketURL maps an http base url to the server's websocket endpoint.
func socketURL(base string, client string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"client": {client}}.Encode()
	return u.String(), nil
}
