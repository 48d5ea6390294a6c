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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.json> <result.json>",
		Short: "Check a result for missing choices and cycles",
		Long: `Reports the reachable classes without a choice, the classes on a cycle
and, for a valid result, its DAG and tree costs. Exits 4 when invalid.`,
		Args: exactArgs(2, "<graph.json> <result.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := egraph.LoadGraph(args[0])
			if err != nil {
				return err
			}
			res, err := egraph.LoadResult(args[1])
			if err != nil {
				return err
			}

			roots := g.Roots()
			missing := res.Unresolved(g, roots)
			cycles := res.FindCycles(g, roots)
			w := a.stdout
			fmt.Fprintf(w, "missing: %v\n", missing)
			fmt.Fprintf(w, "cycles: %v\n", cycles)
			if len(missing) > 0 || len(cycles) > 0 {
				fmt.Fprintln(w, "valid: false")
				return &ExitError{Code: ExitInvariant}
			}
			fmt.Fprintf(w, "dag: %g\n", float64(res.DAGCost(g, roots)))
			fmt.Fprintf(w, "tree: %g\n", float64(res.TreeCost(g, roots)))
			fmt.Fprintln(w, "valid: true")
			return nil
		},
	}
}
