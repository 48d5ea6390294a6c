// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes extraction over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/registry"
)

// Config configures the HTTP listener.
type Config struct {
	// Addr is the listen address.
	Addr string

	// ServiceName names the otelgin spans.
	ServiceName string

	// Version is reported by /healthz.
	Version string

	// MaxBodyBytes caps the request body.
	MaxBodyBytes int64

	// ReadHeaderTimeout bounds header reads.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown after the context ends.
	ShutdownTimeout time.Duration
}

// DefaultConfig listens on :8080 with a 64 MiB body limit.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ServiceName:       "egx",
		Version:           "dev",
		MaxBodyBytes:      64 << 20,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
	}
}

// Server serves the extraction API.
//
// Thread Safety: Safe for concurrent requests.
type Server struct {
	cfg      Config
	registry *registry.Registry
	deps     registry.Deps
	defaults extractor.Request
	router   *gin.Engine
	logger   *slog.Logger
}

// New builds a Server. defaults supplies the cost function, random
// probability and seed when a request omits them.
func New(cfg Config, reg *registry.Registry, deps registry.Deps, defaults extractor.Request) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		registry: reg,
		deps:     deps,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "server")),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	s.registerRoutes(router)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// registerRoutes registers:
//
//	POST /v1/extract    - run an extractor on a graph
//	GET  /v1/extractors - list extractors and cost functions
//	GET  /healthz       - liveness
//	GET  /metrics       - Prometheus metrics
func (s *Server) registerRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	v1.POST("/extract", s.HandleExtract)
	v1.GET("/extractors", s.HandleExtractors)

	router.GET("/healthz", s.HandleHealth)
	router.GET("/metrics", s.HandleMetrics)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", slog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
