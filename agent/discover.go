package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"
)

const defaultService = "_collabwiki._tcp"

var errNoServer = errors.New("no server found on the local network")

// discover browses service for up to timeout and returns the base url of the
// first server that answers.
func discover(ctx context.Context, service string, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return "", fmt.Errorf("mdns browse: %w", err)
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", errNoServer
			}
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			glog.Infof("[discover]found %s at %s:%d\n", entry.Instance, entry.AddrIPv4[0], entry.Port)
			return fmt.Sprintf("http://%s:%d", entry.AddrIPv4[0], entry.Port), nil
		case <-ctx.Done():
			return "", errNoServer
		}
	}
}
