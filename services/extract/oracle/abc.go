// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/egx/services/extract/circuit"
	"github.com/AleutianAI/egx/services/extract/egraph"
)

// ABCName is the registered name of the ABC oracle.
const ABCName = "abc"

// DefaultABCScript is the ABC command sequence. {eqn}, {lib} and {out}
// are replaced with the scratch eqn path, the liberty library and the
// scratch verilog path.
const DefaultABCScript = "read_eqn {eqn}; read_lib {lib}; strash; dch; map; topo; upsize; dnsize; stime; write {out}"

var delayPattern = regexp.MustCompile(`Delay\s*=\s*([-+]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?)`)

// ABCConfig configures the ABC oracle.
type ABCConfig struct {
	// Binary is the abc executable (default: "abc" on PATH).
	Binary string `yaml:"binary" json:"binary"`

	// Library is the liberty file passed to read_lib.
	Library string `yaml:"library" json:"library"`

	// ScratchDir holds per-candidate eqn and verilog files (default: os.TempDir()).
	ScratchDir string `yaml:"scratch_dir" json:"scratch_dir"`

	// Script overrides DefaultABCScript.
	Script string `yaml:"script" json:"script"`

	// Timeout bounds one abc run. Zero means no limit beyond the context.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// OutputNames names the eqn outputs. Empty means p[i].
	OutputNames []string `yaml:"-" json:"-"`
}

// ABC scores a candidate by the critical path delay ABC reports after
// technology mapping.
//
// Description:
//
//	Each call renders the candidate as an eqn file named after the
//	candidate id, runs abc over it, and parses the first number after
//	"Delay =" in its output. Scratch files are removed after the call.
//
// Thread Safety: Safe for concurrent use. Calls share no state.
type ABC struct {
	config ABCConfig
	logger *slog.Logger
}

// NewABC creates an ABC oracle.
func NewABC(config ABCConfig) *ABC {
	if config.Binary == "" {
		config.Binary = "abc"
	}
	if config.ScratchDir == "" {
		config.ScratchDir = os.TempDir()
	}
	if config.Script == "" {
		config.Script = DefaultABCScript
	}
	return &ABC{config: config, logger: slog.Default()}
}

// WithLogger sets the logger.
func (a *ABC) WithLogger(logger *slog.Logger) *ABC {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Name implements Oracle.
func (a *ABC) Name() string { return ABCName }

// Evaluate implements Oracle.
func (a *ABC) Evaluate(ctx context.Context, c Candidate) (egraph.Cost, error) {
	nl, err := circuit.Build(c.Graph, c.Roots, c.Result, circuit.Options{OutputNames: a.config.OutputNames})
	if err != nil {
		return egraph.Infinity, newError(a.Name(), c, KindInvalid, err)
	}

	base := filepath.Join(a.config.ScratchDir, "egx-"+c.ID)
	eqnPath, outPath := base+".eqn", base+".v"
	defer func() {
		for _, p := range []string{eqnPath, outPath} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				a.logger.Debug("abc scratch cleanup failed", slog.String("path", p), slog.String("error", rmErr.Error()))
			}
		}
	}()

	if err := os.WriteFile(eqnPath, []byte(nl.String()), 0o600); err != nil {
		return egraph.Infinity, newError(a.Name(), c, KindIO, err)
	}

	runCtx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	script := strings.NewReplacer(
		"{eqn}", eqnPath,
		"{lib}", a.config.Library,
		"{out}", outPath,
	).Replace(a.config.Script)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, a.config.Binary, "-c", script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	a.logger.Debug("abc run finished",
		slog.String("candidate", c.ID),
		slog.Duration("duration", time.Since(start)),
	)

	if runErr != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return egraph.Infinity, newError(a.Name(), c, KindTimeout, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return egraph.Infinity, newError(a.Name(), c, KindExit,
				fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())))
		}
		return egraph.Infinity, newError(a.Name(), c, KindIO, runErr)
	}

	delay, err := ParseDelay(stdout.String())
	if err != nil {
		return egraph.Infinity, newError(a.Name(), c, KindParse, err)
	}
	return egraph.Cost(delay), nil
}

// ParseDelay returns the first number following "Delay =" in out. A
// negative delay is rejected with ErrNoDelay.
func ParseDelay(out string) (float64, error) {
	m := delayPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, ErrNoDelay
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoDelay, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative delay %v", ErrNoDelay, v)
	}
	return v, nil
}
