// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a tool's documents",
		Long:  "Embed the query and return the most similar stored chunks with their document paths.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().StringP("tool", "t", "", "tool to search")
	cmd.Flags().IntP("limit", "k", 0, "maximum number of results (default from config)")
	_ = cmd.MarkFlagRequired("tool")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	toolName, _ := cmd.Flags().GetString("tool")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = cfg.Display.DefaultLimit
	}

	engines, err := WireEngines(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engines.Close() }()

	results, err := engines.Search.Search(cmd.Context(), toolName, query, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Display.DefaultFormat != formatTable {
		return renderObject(out, cfg.Display.DefaultFormat, results)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "No results")
		return err
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			fmt.Sprintf("%.4f", r.Score),
			r.DocumentPath,
			fmt.Sprintf("%d-%d", r.StartChar, r.EndChar),
			truncate(r.Text, 80),
		}
	}
	return renderTable(out, []string{"SCORE", "DOCUMENT", "SPAN", "TEXT"}, rows)
}
