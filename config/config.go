// Package config loads server settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/oklog/ulid/v2"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
	DriverBolt     = "bolt"
)

type Store struct {
	Driver string `yaml:"driver"`
	// DSN is the connection url for postgres and the file path for sqlite
	// and bolt.
	DSN string `yaml:"dsn"`
}

type Redis struct {
	// Addr empty disables the cross node bridge.
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type Mdns struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
}

type Config struct {
	Addr          string `yaml:"addr"`
	DebounceDelay string `yaml:"debounceDelay"`
	NodeID        string `yaml:"nodeId"`
	SendBuffer    int    `yaml:"sendBuffer"`
	Store         Store  `yaml:"store"`
	Redis         Redis  `yaml:"redis"`
	Mdns          Mdns   `yaml:"mdns"`
}

func Default() *Config {
	return &Config{
		Addr:          ":8080",
		DebounceDelay: "300ms",
		SendBuffer:    256,
		Store:         Store{Driver: DriverMemory},
		Redis:         Redis{Channel: "collabwiki.document-changed"},
		Mdns:          Mdns{Service: "_collabwiki._tcp"},
	}
}

// fillDefaults restores defaults for fields a config file left empty.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.DebounceDelay == "" {
		c.DebounceDelay = d.DebounceDelay
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = d.Redis.Channel
	}
	if c.Mdns.Service == "" {
		c.Mdns.Service = d.Mdns.Service
	}
}

// Load reads path over the defaults, when path is not empty, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read: %w", err)
		}
		if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		c.fillDefaults()
	}
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	if c.NodeID == "" {
		c.NodeID = ulid.Make().String()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("COLLABWIKI_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := lookup("COLLABWIKI_DEBOUNCE"); ok {
		c.DebounceDelay = v
	}
	driver, explicit := lookup("COLLABWIKI_STORE")
	if explicit {
		c.Store.Driver = driver
	}
	if v, ok := lookup("COLLABWIKI_STORE_DSN"); ok {
		c.Store.DSN = v
	}
	// DATABASE_URL only selects postgres when no other driver was asked for
	if v, ok := lookup("DATABASE_URL"); ok && (!explicit || driver == DriverPostgres) {
		c.Store.Driver = DriverPostgres
		c.Store.DSN = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("COLLABWIKI_NODE_ID"); ok {
		c.NodeID = v
	}
	if v, ok := lookup("COLLABWIKI_SEND_BUFFER"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: COLLABWIKI_SEND_BUFFER: %w", err)
		}
		c.SendBuffer = n
	}
	return nil
}

// Debounce returns the parsed debounce delay. Only valid after Validate.
func (c *Config) Debounce() time.Duration {
	d, _ := time.ParseDuration(c.DebounceDelay)
	return d
}

func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil {
		return fmt.Errorf("config: debounceDelay: %w", err)
	}
	if d <= 0 {
		return errors.New("config: debounceDelay must be positive")
	}
	if c.SendBuffer <= 0 {
		return errors.New("config: sendBuffer must be positive")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSqlite, DriverBolt:
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %s needs a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Mdns.Enabled && c.Mdns.Service == "" {
		return errors.New("config: mdns.service is required when mdns is enabled")
	}
	return nil
}
