// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	grimmcp "github.com/grimoire-dev/grimoire/internal/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registered tools over MCP",
		Long: "Expose one search tool per active collection over the Model Context Protocol. " +
			"Serves on stdio unless --listen is given. The tool set is read once at startup; " +
			"tools added or removed afterwards require a restart.",
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "serve streamable HTTP on this host:port instead of stdio")
	_ = viper.BindPFlag("serve.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engines, err := WireEngines(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engines.Close() }()

	srv := grimmcp.NewServer(version, engines.Store, engines.Search, cfg.Display.DefaultLimit, nil)

	n, err := srv.RegisterTools(cmd.Context())
	if err != nil {
		return err
	}
	if n == 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: no active tools to serve — register one with 'grimoire tool add'")
	}

	if cfg.Serve.Listen != "" {
		return srv.ServeHTTP(cfg.Serve.Listen)
	}
	return srv.ServeStdio()
}
