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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/extractor"
)

func (a *app) sampleCmd() *cobra.Command {
	var (
		dir           string
		numSamples    int
		randomProb    float64
		seed          uint64
		evictFraction float64
		costFunction  string
	)
	cmd := &cobra.Command{
		Use:   "sample <graph.json>",
		Short: "Write perturbed extractions of a graph as result<i>.json",
		Long: `Extracts the graph once deterministically, then resumes from that result
--num-samples times, each with its own random stream. Every valid sample
is written to --dir as result<i>.json and listed with its costs.`,
		Args: exactArgs(1, "<graph.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			fl := cmd.Flags()
			if fl.Changed("num-samples") {
				cfg.Extract.NumSamples = numSamples
			}
			if fl.Changed("random-prob") {
				cfg.Extract.RandomProb = randomProb
			}
			if fl.Changed("seed") {
				cfg.Extract.Seed = seed
			}
			if fl.Changed("cost-function") {
				cfg.Extract.CostFunction = costFunction
			}
			if !fl.Changed("evict-fraction") {
				evictFraction = cfg.Search.EvictFraction
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			g, err := egraph.LoadGraph(args[0])
			if err != nil {
				return err
			}
			p, err := extractor.NewPropagator(g, cfg.Extract.CostFunction)
			if err != nil {
				return err
			}
			roots := g.Roots()
			base, err := extractor.NewIncremental().
				WithIncrementalLogger(a.log()).
				ExtractWith(cmd.Context(), p, roots, extractor.Request{CostFunction: cfg.Extract.CostFunction})
			if err != nil {
				return err
			}

			samples, err := extractor.NewSampler(p).Sample(cmd.Context(), base, roots, extractor.SampleOptions{
				Count:         cfg.Extract.NumSamples,
				RandomProb:    cfg.Extract.RandomProb,
				EvictFraction: evictFraction,
				Seed:          cfg.Extract.Seed,
				Budget:        cfg.Request().Budget,
			})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SAMPLE\tDAG\tTREE\tEVICTED")
			for _, s := range samples {
				path := filepath.Join(dir, fmt.Sprintf("result%d.json", s.Index))
				if err := egraph.SaveResult(path, s.Result); err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%g\t%g\t%d\n", s.Index, float64(s.DAGCost), float64(s.TreeCost), s.Stats.Evicted)
			}
			a.log().Info("sampling complete",
				slog.Int("requested", cfg.Extract.NumSamples),
				slog.Int("written", len(samples)),
				slog.String("dir", dir))
			return tw.Flush()
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&dir, "dir", "samples", "output directory")
	fl.IntVar(&numSamples, "num-samples", 0, "number of samples")
	fl.Float64Var(&randomProb, "random-prob", 0, "randomized acceptance probability")
	fl.Uint64Var(&seed, "seed", 0, "random seed")
	fl.Float64Var(&evictFraction, "evict-fraction", 0, "share of decided classes evicted per sample")
	fl.StringVar(&costFunction, "cost-function", "", "node_sum_cost or node_depth_cost")
	return cmd
}
