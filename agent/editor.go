package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/sergi/go-diff/diffmatchpatch"

	"collabwiki/docs"
	"collabwiki/wire"
)

type pages interface {
	Get(ctx context.Context, id string) (*docs.Page, error)
	Save(ctx context.Context, id string, markup string) error
}

var (
	warn = color.New(color.FgYellow).SprintfFunc()
	fail = color.New(color.FgRed).SprintfFunc()
	good = color.New(color.FgGreen).SprintfFunc()
)

// editor holds the local copy of one page. Another client's change only
// marks the copy possibly stale; nothing is merged.
type editor struct {
	pages  pages
	send   func(msg any) error
	out    io.Writer
	id     string
	client string

	mu     sync.Mutex // protects the fields below
	markup string
	stale  bool
	shown  uint64
}

func newEditor(p pages, send func(msg any) error, out io.Writer, id string, client string) *editor {
	return &editor{
		pages:  p,
		send:   send,
		out:    out,
		id:     id,
		client: client,
	}
}

func (e *editor) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

// load replaces the local copy with the server's and clears the stale flag.
func (e *editor) load(ctx context.Context) error {
	page, err := e.pages.Get(ctx, e.id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.markup = page.Markup
	e.stale = false
	e.mu.Unlock()
	e.printf("%s\n%s\n", good("loaded %s (%s)", page.Name, page.ID), page.Markup)
	return nil
}

func (e *editor) isStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale
}

func (e *editor) text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markup
}

// handle receives every message the server pushes.
func (e *editor) handle(msg any) {
	switch m := msg.(type) {
	case *wire.DocumentChanged:
		if m.DocumentID != e.id || m.Client == e.client {
			return
		}
		e.mu.Lock()
		e.stale = true
		e.mu.Unlock()
		e.printf("%s\n", warn("page changed by %s at %s, :diff to compare or :reload", m.Client, m.Timestamp.Format("15:04:05")))
	case *wire.Preview:
		e.mu.Lock()
		if m.Generation < e.shown {
			e.mu.Unlock()
			return
		}
		e.shown = m.Generation
		e.mu.Unlock()
		e.printf("--- preview %d ---\n%s", m.Generation, m.HTML)
	case *wire.RenderError:
		e.printf("%s\n", fail("render %d failed: %s", m.Generation, m.Error))
	case *wire.Pong:
	default:
		glog.V(1).Infof("[editor]unexpected %T\n", msg)
	}
}

// command runs one input line. Lines starting with ':' are commands, any
// other line replaces the local markup, with \n standing for a newline.
func (e *editor) command(ctx context.Context, line string) (quit bool, err error) {
	switch strings.TrimSpace(line) {
	case ":quit", ":q":
		return true, nil
	case ":save", ":w":
		if err := e.pages.Save(ctx, e.id, e.text()); err != nil {
			return false, err
		}
		e.mu.Lock()
		e.stale = false
		e.mu.Unlock()
		e.printf("%s\n", good("saved"))
		return false, nil
	case ":reload":
		return false, e.load(ctx)
	case ":diff":
		page, err := e.pages.Get(ctx, e.id)
		if err != nil {
			return false, err
		}
		e.printf("%s\n", diff(page.Markup, e.text()))
		return false, nil
	}
	if strings.HasPrefix(line, ":") {
		e.printf("%s\n", warn("unknown command %s", line))
		return false, nil
	}
	markup := strings.ReplaceAll(line, `\n`, "\n")
	e.mu.Lock()
	e.markup = markup
	e.mu.Unlock()
	if err := e.send(wire.Edit{Type: wire.TypeEdit, Markup: markup}); err != nil {
		e.printf("%s\n", warn("preview unavailable: %s", err))
	}
	return false, nil
}

// diff shows what saving local would change on the server.
func diff(server string, local string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(server, local, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	if len(diffs) == 0 || (len(diffs) == 1 && diffs[0].Type == diffmatchpatch.DiffEqual) {
		return "no differences"
	}
	return dmp.DiffPrettyText(diffs)
}
