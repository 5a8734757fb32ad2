// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpserver serves health, metrics and the latest readings while
// the monitor runs.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/anemostat/internal/config"
)

// Server wraps the HTTP server
type Server struct {
	srv *http.Server
}

// Options supplies the handlers' data sources. Nil fields disable the
// corresponding route or check.
type Options struct {
	MetricsPath    string
	MetricsHandler http.Handler
	Ready          func() bool
	Readings       func() map[string]any
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// New creates the server and registers its routes
func New(cfg config.HTTPConfig, opts Options) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if opts.Ready == nil || opts.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.MetricsHandler))
	}
	if opts.Readings != nil {
		r.GET("/api/v1/readings", func(c *gin.Context) {
			c.JSON(http.StatusOK, opts.Readings())
		})
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Start serves until Shutdown (blocking)
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
