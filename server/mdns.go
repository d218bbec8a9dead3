package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"
)

// advertise registers the server under service on the local link so agents
// can find it without a url. The caller shuts the returned server down.
func advertise(service string, addr string, node string) (*zeroconf.Server, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("mdns: addr %s: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("mdns: port %s: %w", portStr, err)
	}
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("collabwiki-%s", host),
		service,
		"local.",
		port,
		[]string{"txtv=0", "node=" + node},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("mdns: register: %w", err)
	}
	glog.Infof("[mdns]registered %s on port %d\n", service, port)
	return server, nil
}
