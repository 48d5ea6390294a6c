// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/egx/services/extract/config"
	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/registry"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitInput     = 3
	ExitInvariant = 4
)

// ExitError carries the process exit code for a failed command.
//
// # Example
//
//	return &ExitError{Code: ExitUsage, Err: fmt.Errorf("missing graph file")}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the underlying error. Nil means exit silently with Code.
	Err error
}

// Error returns a formatted error message.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}

// exitCodeOf maps an error to a process exit code.
func exitCodeOf(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var inv *extractor.InvariantError
	if errors.As(err, &inv) {
		return ExitInvariant
	}
	var formatErr *egraph.FormatError
	if errors.As(err, &formatErr) {
		return ExitInput
	}
	switch {
	case errors.Is(err, registry.ErrUnknownExtractor),
		errors.Is(err, egraph.ErrUnknownCostFunction),
		errors.Is(err, config.ErrInvalidConfig):
		return ExitUsage
	}
	return ExitFailure
}
