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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/egx/pkg/validation"
	"github.com/AleutianAI/egx/services/extract/circuit"
	"github.com/AleutianAI/egx/services/extract/egraph"
)

func (a *app) eqnCmd() *cobra.Command {
	var reference, out string
	cmd := &cobra.Command{
		Use:   "eqn <graph.json> <result.json>",
		Short: "Render an extraction as an ABC eqn file",
		Args:  exactArgs(2, "<graph.json> <result.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := egraph.LoadGraph(args[0])
			if err != nil {
				return err
			}
			res, err := egraph.LoadResult(args[1])
			if err != nil {
				return err
			}

			var opts circuit.Options
			if reference != "" {
				names, err := readReference(reference)
				if err != nil {
					return err
				}
				opts.OutputNames = names
			}

			nl, err := circuit.Build(g, g.Roots(), res, opts)
			if err != nil {
				return &ExitError{Code: ExitInput, Err: err}
			}

			var w io.Writer = a.stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			return nl.WriteEqn(w)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "eqn file whose OUTORDER names the outputs")
	cmd.Flags().StringVarP(&out, "out", "o", "-", `output path, "-" for stdout`)
	return cmd
}

func readReference(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExitError{Code: ExitInput, Err: fmt.Errorf("open reference: %w", err)}
	}
	defer f.Close()
	names, err := circuit.ReadOutputOrder(f)
	if err != nil {
		return nil, &ExitError{Code: ExitInput, Err: fmt.Errorf("%s: %w", path, err)}
	}
	if err := validation.ValidateSignalNames(names); err != nil {
		return nil, &ExitError{Code: ExitInput, Err: fmt.Errorf("%s: %w", path, err)}
	}
	return names, nil
}
