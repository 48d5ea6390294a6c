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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/egx/services/extract/registry"
	"github.com/AleutianAI/egx/services/extract/server"
)

func (a *app) serveCmd() *cobra.Command {
	cfg := server.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve extraction over HTTP",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			o, closeOracle, err := a.buildOracle()
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, closeOracle())
			}()

			cfg.Version = Version
			srv := server.New(cfg, registry.Default(), registry.Deps{
				ILP:    a.cfg.ILP,
				Search: a.cfg.Search,
				Oracle: o,
				Logger: a.log(),
			}, a.cfg.Request())
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "request body limit")
	return cmd
}
