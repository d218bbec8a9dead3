package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"collabwiki/bus"
	"collabwiki/bus/redisbridge"
	"collabwiki/config"
	"collabwiki/docs"
	"collabwiki/notify"
	"collabwiki/registry"
	"collabwiki/render"
)

const Version = "0.1.0"

const usage = `Collaborative wiki server.

Usage:
    server [--config=<path>] [--addr=<addr>] [--v=<level>]
    server -h | --help
    server --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    YAML config file.
    --addr=<addr>      Listen address, overrides the config.
    --v=<level>        Log verbosity [default: 0].
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}
	level, _ := opts.String("--v")
	setupLogging(level)
	defer glog.Flush()

	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		glog.Exitf("[server]%s\n", err)
	}
	if addr, _ := opts.String("--addr"); addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		glog.Exitf("[server]%s\n", err)
	}
}

func setupLogging(level string) {
	flag.Set("logtostderr", "true")
	flag.Set("v", level)
	flag.CommandLine.Parse(nil)
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	glog.Infof("[server]store %s\n", cfg.Store.Driver)

	b := bus.New()
	defer b.Close()

	r := registry.New()
	defer r.CloseAll()

	notifier := notify.New(r)
	if err := notifier.Start(b); err != nil {
		return err
	}
	defer notifier.Stop(b)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		bridge := redisbridge.New(rdb, b, cfg.NodeID, cfg.Redis.Channel)
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer bridge.Close()
	}

	renderer := render.NewMarkdown()
	ws := &wikiServer{
		docs:       docs.NewService(s, docs.NewPublisher(b), renderer),
		registry:   r,
		renderer:   renderer,
		debounce:   cfg.Debounce(),
		sendBuffer: cfg.SendBuffer,
	}

	if cfg.Mdns.Enabled {
		zc, err := advertise(cfg.Mdns.Service, cfg.Addr, cfg.NodeID)
		if err != nil {
			return err
		}
		defer zc.Shutdown()
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: ws.router(),
	}
	errs := make(chan error, 1)
	go func() {
		glog.Infof("[server]node %s listening on %s\n", cfg.NodeID, cfg.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	glog.Infof("[server]shutting down\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// hijacked websockets are not tracked by Shutdown; CloseAll ends their
	// write pumps
	r.CloseAll()
	return srv.Shutdown(shutdownCtx)
}
