// Package server runs the gateway's HTTP listeners and shuts them down
// gracefully.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Certificate files expected in the cert dir
const (
	CertFile = "fullchain.pem"
	KeyFile  = "privkey.pem"
)

// Server wraps an http.Server with the gateway's defaults
type Server struct {
	name       string
	httpServer *http.Server
	config     *Config
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Config holds server configuration
type Config struct {
	// Name identifies the server in logs, e.g. "api" or "metrics"
	Name string

	// Address is the listen address (e.g. "127.0.0.1:2351")
	Address string

	Handler http.Handler

	// CertDir holds fullchain.pem and privkey.pem; empty serves plain HTTP
	CertDir string

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int

	Logger *zap.Logger
}

// DefaultConfig returns the default configuration for handler
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Name:              "api",
		Address:           "127.0.0.1:2351",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// New creates a server. With a cert dir the certificate is loaded right
// away so a broken setup fails before listening.
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := config.Name
	if name == "" {
		name = "api"
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           config.Handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.Named(name)),
	}

	if config.CertDir != "" {
		tlsConfig, err := LoadTLSConfig(config.CertDir)
		if err != nil {
			return nil, err
		}
		httpServer.TLSConfig = tlsConfig
	}

	return &Server{
		name:       name,
		httpServer: httpServer,
		config:     config,
		logger:     logger,
	}, nil
}

// LoadTLSConfig loads the certificate pair from dir
func LoadTLSConfig(dir string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate from %s: %w", dir, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

// Listen binds the address; Serve may be called afterwards
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	if s.httpServer.TLSConfig != nil {
		listener = tls.NewListener(listener, s.httpServer.TLSConfig)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Serve serves on the bound listener, listening first if necessary.
// It returns nil once the server was shut down.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		listener = s.listener
		s.mu.Unlock()
	}

	s.logger.Info("server listening",
		zap.String("server", s.name),
		zap.String("address", listener.Addr().String()),
		zap.Bool("tls", s.TLS()))

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", s.name, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Name returns the server name
func (s *Server) Name() string {
	return s.name
}

// TLS reports whether the server serves HTTPS
func (s *Server) TLS() bool {
	return s.httpServer.TLSConfig != nil
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// URL returns the base url of the server
func (s *Server) URL() string {
	scheme := "http"
	if s.TLS() {
		scheme = "https"
	}
	return scheme + "://" + s.Addr()
}
