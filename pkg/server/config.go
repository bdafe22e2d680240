package server

import (
	"fmt"
	"net/http"
	"time"
)

// ServerConfig holds configuration for the listeners and the pumps.
type ServerConfig struct {
	// TCPAddress is the raw TCP listen address. Empty disables TCP.
	// Default: "127.0.0.1:10101".
	TCPAddress string

	// HTTPAddress is the admin HTTP and WebSocket listen address. Empty
	// disables HTTP.
	// Default: ":8080".
	HTTPAddress string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin validates the WebSocket Origin header.
	// Default: nil (gorilla's same-origin check).
	CheckOrigin func(r *http.Request) bool

	// AcceptRate is the sustained number of connections admitted per second.
	// Zero or negative means unlimited.
	// Default: 20.
	AcceptRate float64

	// AcceptBurst is the number of connections admitted at once.
	// Default: 10.
	AcceptBurst int

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadHeaderTimeout bounds reading HTTP request headers.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		TCPAddress:        "127.0.0.1:10101",
		HTTPAddress:       ":8080",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		AcceptRate:        20,
		AcceptBurst:       10,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Clone returns a copy of the config.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return DefaultServerConfig()
	}
	clone := *c
	return &clone
}

// WithTCPAddress returns a copy with the TCP address set.
func (c *ServerConfig) WithTCPAddress(addr string) *ServerConfig {
	clone := c.Clone()
	clone.TCPAddress = addr
	return clone
}

// WithHTTPAddress returns a copy with the HTTP address set.
func (c *ServerConfig) WithHTTPAddress(addr string) *ServerConfig {
	clone := c.Clone()
	clone.HTTPAddress = addr
	return clone
}

// applyDefaults fills unset fields.
func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.AcceptBurst == 0 {
		c.AcceptBurst = defaults.AcceptBurst
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// ValidateConfig reports unusable values.
func (c *ServerConfig) ValidateConfig() error {
	if c.TCPAddress == "" && c.HTTPAddress == "" {
		return fmt.Errorf("%w: no listen address", ErrInvalidConfig)
	}
	if c.AcceptBurst < 0 {
		return fmt.Errorf("%w: negative accept burst", ErrInvalidConfig)
	}
	if c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}
