package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"collabwiki/preview"
	"collabwiki/render"
)

const Version = "0.1.0"

const usage = `Collaborative wiki terminal client.

Lines typed on stdin replace the page markup, \n stands for a newline.
While editing, :save stores the page, :diff compares with the server copy,
:reload drops local changes and :quit exits.

Usage:
    agent edit <id> [--url=<url>] [--client=<client>] [--service=<service>] [--v=<level>]
    agent preview [--url=<url>] [--delay=<delay>] [--service=<service>] [--v=<level>]
    agent -h | --help
    agent --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --url=<url>            Server base url. Discovered over mDNS when omitted.
    --client=<client>      Client identity. A fresh one per run when omitted.
    --service=<service>    mDNS service to browse [default: _collabwiki._tcp].
    --delay=<delay>        Quiet period before a local preview renders [default: 300ms].
    --v=<level>            Log verbosity [default: 0].
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}
	level, _ := opts.String("--v")
	flag.Set("logtostderr", "true")
	flag.Set("v", level)
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := serverURL(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, fail("%s", err))
		os.Exit(1)
	}

	if edit_, _ := opts.Bool("edit"); edit_ {
		err = edit(ctx, opts, base)
	} else if preview_, _ := opts.Bool("preview"); preview_ {
		err = localPreview(ctx, opts, base)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, fail("%s", err))
		os.Exit(1)
	}
}

func serverURL(ctx context.Context, opts docopt.Opts) (string, error) {
	if u, _ := opts.String("--url"); u != "" {
		return u, nil
	}
	service, _ := opts.String("--service")
	if service == "" {
		service = defaultService
	}
	return discover(ctx, service, 5*time.Second)
}

// lines feeds stdin to f until EOF, ctx is done or f asks to stop.
func lines(ctx context.Context, in io.Reader, f func(line string) (bool, error)) error {
	ch := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()
	for {
		select {
		case line := <-ch:
			stop, err := f(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, fail("%s", err))
			}
			if stop {
				return nil
			}
		case err := <-errs:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func edit(ctx context.Context, opts docopt.Opts, base string) error {
	id, _ := opts.String("<id>")
	client, _ := opts.String("--client")
	if client == "" {
		client = uuid.NewString()
	}
	ws, err := socketURL(base, client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var e *editor
	l := newLink(ws, func(msg any) { e.handle(msg) })
	e = newEditor(newPageClient(base, client), l.send, os.Stdout, id, client)
	if err := e.load(ctx); err != nil {
		return err
	}
	go l.run(ctx)

	return lines(ctx, os.Stdin, func(line string) (bool, error) {
		return e.command(ctx, line)
	})
}

// localPreview renders stdin edits through a local debounced session that
// calls the server's render endpoint.
func localPreview(ctx context.Context, opts docopt.Opts, base string) error {
	delayStr, _ := opts.String("--delay")
	delay, err := time.ParseDuration(delayStr)
	if err != nil {
		return fmt.Errorf("--delay: %w", err)
	}
	renderer := render.NewHTTPClient(strings.TrimSuffix(base, "/")+"/app/markdown", nil)
	session := preview.New(renderer,
		func(res preview.Result) {
			fmt.Printf("--- preview %d ---\n%s", res.Generation, res.Output)
		},
		preview.WithDelay(delay),
		preview.WithErrorHandler(func(generation uint64, err error) {
			fmt.Fprintln(os.Stderr, fail("render %d failed: %s", generation, err))
		}),
	)
	defer session.Close()

	err = lines(ctx, os.Stdin, func(line string) (bool, error) {
		if strings.TrimSpace(line) == ":quit" {
			return true, nil
		}
		session.Edit(strings.ReplaceAll(line, `\n`, "\n"))
		return false, nil
	})
	if err != nil {
		return err
	}
	// let the last edit render before exiting
	for {
		state, _ := session.Status()
		if state == preview.Idle || ctx.Err() != nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}
