package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestMarkdown(t *testing.T) {
	out, err := NewMarkdown().Render(context.Background(), "# Example page\n\nSome text _here_.\n")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.Contains(out, `<h1 id="example-page">Example page</h1>`))
	assert.Equal(t, true, strings.Contains(out, "<p>Some text <em>here</em>.</p>"))
}

func TestMarkdownTable(t *testing.T) {
	out, err := NewMarkdown().Render(context.Background(), "| a |\n|---|\n| 1 |\n")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.Contains(out, "<table>"))
}

func TestHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) == "fail" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<p>" + string(body) + "</p>"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	out, err := c.Render(context.Background(), "abc")
	assert.Equal(t, nil, err)
	assert.Equal(t, "<p>abc</p>", out)

	_, err = c.Render(context.Background(), "fail")
	assert.Equal(t, true, errors.Is(err, ErrUpstream))
}
