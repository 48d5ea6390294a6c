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
	"encoding/json"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// ExtractRequest is the body of POST /v1/extract.
type ExtractRequest struct {
	// Graph is the graph in interchange form.
	Graph json.RawMessage `json:"graph" binding:"required"`

	// Extractor is a registry name or alias.
	Extractor string `json:"extractor" binding:"required"`

	// CostFunction overrides the server default.
	CostFunction string `json:"cost_function,omitempty"`

	// RandomProb overrides the server default.
	RandomProb *float64 `json:"random_prob,omitempty" binding:"omitempty,gte=0,lte=1"`

	// NumSamples is passed to extractors that sample in parallel.
	NumSamples int `json:"num_samples,omitempty" binding:"omitempty,gte=1"`

	// Seed overrides the server default.
	Seed *uint64 `json:"seed,omitempty"`
}

// ExtractResponse is the reply to POST /v1/extract. Choices holds only
// the classes reachable from the roots.
type ExtractResponse struct {
	Extractor    string                           `json:"extractor"`
	CostFunction string                           `json:"cost_function"`
	Choices      map[egraph.ClassID]egraph.NodeID `json:"choices"`
	DAGCost      float64                          `json:"dag_cost"`
	TreeCost     float64                          `json:"tree_cost"`
	Micros       int64                            `json:"micros"`
}

// ExtractorInfo describes one registered extractor.
type ExtractorInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ExtractorsResponse is the reply to GET /v1/extractors.
type ExtractorsResponse struct {
	Extractors    []ExtractorInfo `json:"extractors"`
	CostFunctions []string        `json:"cost_functions"`
}

// HealthResponse is the reply to GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
