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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/egx/services/extract/cache"
	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/oracle"
	"github.com/AleutianAI/egx/services/extract/registry"
)

type extractFlags struct {
	extractor    string
	costFunction string
	out          string
	result       string
	fullResult   string
	name         string
	numSamples   int
	randomProb   float64
	seed         uint64
	iterations   int
	workers      int
	oracle       string
}

func (a *app) extractCmd() *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract <graph.json>",
		Short: "Run an extractor on a graph and write the run report",
		Long: `Runs the selected extractor and writes a JSON run report to --out.
Use --extractor print to list the available extractors.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.extractor == registry.PrintName {
				return nil
			}
			return exactArgs(1, "<graph.json>")(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.extractor == registry.PrintName {
				return registry.Default().Print(a.stdout)
			}
			if err := a.applyExtractFlags(cmd, &f); err != nil {
				return err
			}
			return a.runExtract(cmd.Context(), args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.extractor, "extractor", extractor.IncrementalName, `extractor name or alias; "print" lists them`)
	fl.StringVar(&f.costFunction, "cost-function", "", "node_sum_cost or node_depth_cost")
	fl.StringVar(&f.out, "out", "", "run report path (default from config: out.json)")
	fl.StringVar(&f.result, "result", "", "write the reachable choices to this path")
	fl.StringVar(&f.fullResult, "full-result", "", "write every choice to this path")
	fl.StringVar(&f.name, "name", "", "report name (default: graph file name)")
	fl.IntVar(&f.numSamples, "num-samples", 0, "candidates per search step")
	fl.Float64Var(&f.randomProb, "random-prob", 0, "randomized acceptance probability")
	fl.Uint64Var(&f.seed, "seed", 0, "random seed")
	fl.IntVar(&f.iterations, "iterations", 0, "search iterations")
	fl.IntVar(&f.workers, "workers", 0, "search worker goroutines")
	fl.StringVar(&f.oracle, "oracle", "", "search cost oracle: dag, tree, abc, ml")
	return cmd
}

// applyExtractFlags overrides the configuration with explicitly set flags.
func (a *app) applyExtractFlags(cmd *cobra.Command, f *extractFlags) error {
	fl := cmd.Flags()
	cfg := a.cfg
	if fl.Changed("cost-function") {
		cfg.Extract.CostFunction = f.costFunction
	}
	if fl.Changed("out") {
		cfg.Extract.Out = f.out
	}
	if fl.Changed("num-samples") {
		cfg.Extract.NumSamples = f.numSamples
	}
	if fl.Changed("random-prob") {
		cfg.Extract.RandomProb = f.randomProb
	}
	if fl.Changed("seed") {
		cfg.Extract.Seed = f.seed
	}
	if fl.Changed("iterations") {
		cfg.Search.Iterations = f.iterations
	}
	if fl.Changed("workers") {
		cfg.Search.Workers = f.workers
	}
	if fl.Changed("oracle") {
		cfg.Oracle.Kind = f.oracle
	}
	return cfg.Validate()
}

func (a *app) runExtract(ctx context.Context, graphPath string, f extractFlags) (err error) {
	cfg := a.cfg
	logger := a.log()

	reg := registry.Default()
	if _, err := reg.Lookup(f.extractor); err != nil {
		return err
	}

	g, err := egraph.LoadGraph(graphPath)
	if err != nil {
		return err
	}

	o, closeOracle, err := a.buildOracle()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeOracle())
	}()

	ext, err := reg.Build(f.extractor, registry.Deps{
		ILP:    cfg.ILP,
		Search: cfg.Search,
		Oracle: o,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	req := cfg.Request()
	roots := g.Roots()
	logger.Info("extracting",
		slog.String("graph", graphPath),
		slog.String("extractor", f.extractor),
		slog.String("cost_function", req.CostFunction),
		slog.Int("classes", g.NumClasses()),
		slog.Int("nodes", g.NumNodes()))

	start := time.Now()
	var res *egraph.Result
	if pe, ok := ext.(extractor.ParallelExtractor); ok {
		res, err = pe.ExtractParallel(ctx, g, roots, req, cfg.Extract.NumSamples)
	} else {
		res, err = ext.Extract(ctx, g, roots, req)
	}
	elapsed := time.Since(start)
	if err != nil {
		return err
	}

	dag, reachable := res.DAGResult(g, roots)
	report := Report{
		Name:         f.name,
		Extractor:    f.extractor,
		CostFunction: req.CostFunction,
		Tree:         float64(res.TreeCost(g, roots)),
		DAG:          float64(dag),
		Micros:       elapsed.Microseconds(),
		Seed:         req.Seed,
	}
	if report.Name == "" {
		report.Name = strings.TrimSuffix(filepath.Base(graphPath), filepath.Ext(graphPath))
	}

	if err := writeJSONFile(cfg.Extract.Out, report); err != nil {
		return err
	}
	if f.result != "" {
		if err := egraph.SaveResult(f.result, reachable); err != nil {
			return err
		}
	}
	if f.fullResult != "" {
		if err := egraph.SaveResult(f.fullResult, res); err != nil {
			return err
		}
	}

	logger.Info("extraction complete",
		slog.Float64("dag", report.DAG),
		slog.Float64("tree", report.Tree),
		slog.Int64("micros", report.Micros))
	_, err = fmt.Fprintf(a.stdout, "%s: dag=%g tree=%g micros=%d\n", report.Name, report.DAG, report.Tree, report.Micros)
	return err
}

// buildOracle constructs the configured oracle, wrapped in the cost cache
// when caching is enabled.
func (a *app) buildOracle() (oracle.Oracle, func() error, error) {
	cfg := a.cfg
	logger := a.log()

	o, closer, err := oracle.New(cfg.Oracle, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []io.Closer{closer}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i].Close())
		}
		return errors.Join(errs...)
	}

	if !cfg.Cache.Enabled {
		return o, closeAll, nil
	}
	cc := cfg.Cache
	cc.Logger = logger
	store, err := cache.Open(cc)
	if err != nil {
		return nil, nil, errors.Join(err, closeAll())
	}
	closers = append(closers, store)
	cached := oracle.NewCached(o, cc.MemoryEntries, store).WithLogger(logger)
	return cached, closeAll, nil
}
