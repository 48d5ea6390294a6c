// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/telemetry"
)

// HandleExtract handles POST /v1/extract.
//
// Description:
//
//	Decodes the graph, runs the named extractor, and returns the choices
//	reachable from the roots with their DAG and tree costs.
//
// Response:
//
//	200 OK: ExtractResponse
//	400 Bad Request: malformed body, invalid graph, unknown extractor or
//	                 unknown cost function
//	422 Unprocessable Entity: no acyclic extraction covers the roots
//	500 Internal Server Error: invariant violation or other failure
func (s *Server) HandleExtract(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := s.logger.With(slog.String("request_id", requestID))

	if s.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	}

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	g, err := egraph.ReadGraph(bytes.NewReader(req.Graph))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_GRAPH"})
		return
	}

	ext, err := s.registry.Build(req.Extractor, s.deps)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "UNKNOWN_EXTRACTOR"})
		return
	}

	opts := s.defaults
	if req.CostFunction != "" {
		opts.CostFunction = req.CostFunction
	}
	if req.RandomProb != nil {
		opts.RandomProb = *req.RandomProb
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if _, err := egraph.CostFunctionByName(opts.CostFunction); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "UNKNOWN_COST_FUNCTION"})
		return
	}

	logger.Info("extracting",
		slog.String("extractor", req.Extractor),
		slog.String("cost_function", opts.CostFunction),
		slog.Int("classes", g.NumClasses()),
		slog.Int("nodes", g.NumNodes()))

	ctx := c.Request.Context()
	roots := g.Roots()
	start := time.Now()
	var res *egraph.Result
	if pe, ok := ext.(extractor.ParallelExtractor); ok && req.NumSamples > 0 {
		res, err = pe.ExtractParallel(ctx, g, roots, opts, req.NumSamples)
	} else {
		res, err = ext.Extract(ctx, g, roots, opts)
	}
	elapsed := time.Since(start)
	if err != nil {
		status, code := statusOf(err)
		logger.Error("extraction failed", slog.String("error", err.Error()), slog.String("code", code))
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	dag, reachable := res.DAGResult(g, roots)
	choices := make(map[egraph.ClassID]egraph.NodeID, reachable.Len())
	for _, class := range reachable.Classes() {
		node, _ := reachable.Choice(class)
		choices[class] = node
	}

	c.JSON(http.StatusOK, ExtractResponse{
		Extractor:    req.Extractor,
		CostFunction: opts.CostFunction,
		Choices:      choices,
		DAGCost:      float64(dag),
		TreeCost:     float64(res.TreeCost(g, roots)),
		Micros:       elapsed.Microseconds(),
	})
}

func statusOf(err error) (int, string) {
	var inv *extractor.InvariantError
	switch {
	case errors.As(err, &inv):
		return http.StatusInternalServerError, "INVARIANT_VIOLATION"
	case errors.Is(err, egraph.ErrUnknownCostFunction):
		return http.StatusBadRequest, "UNKNOWN_COST_FUNCTION"
	case errors.Is(err, extractor.ErrUnresolvedRoot):
		return http.StatusUnprocessableEntity, "UNRESOLVED_ROOT"
	default:
		return http.StatusInternalServerError, "EXTRACTION_FAILED"
	}
}

// HandleExtractors handles GET /v1/extractors.
func (s *Server) HandleExtractors(c *gin.Context) {
	resp := ExtractorsResponse{CostFunctions: egraph.CostFunctionNames()}
	for _, name := range s.registry.Names() {
		e, err := s.registry.Lookup(name)
		if err != nil {
			continue
		}
		resp.Extractors = append(resp.Extractors, ExtractorInfo{
			Name:        e.Name,
			Aliases:     e.Aliases,
			Description: e.Description,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: s.cfg.Version})
}

// HandleMetrics handles GET /metrics. It returns 503 until telemetry.Init
// installs the Prometheus exporter.
func (s *Server) HandleMetrics(c *gin.Context) {
	h := telemetry.MetricsHandler()
	if h == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "metrics exporter not configured", Code: "METRICS_DISABLED"})
		return
	}
	h.ServeHTTP(c.Writer, c.Request)
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
