// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grimoire-dev/grimoire/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Synchronize a tool's documents with its source directory",
		Long:  "Walk the tool's source directory, chunk and embed changed files, and reconcile stored documents against what is on disk.",
		RunE:  runIngest,
	}

	cmd.Flags().StringP("tool", "t", "", "tool to ingest into")
	cmd.Flags().StringP("mode", "m", "update", "ingest mode: new, replace, or update")
	cmd.Flags().Int("chunk-size", 0, "override chunk size in tokens")
	cmd.Flags().Int("chunk-overlap", 0, "override chunk overlap in tokens")
	_ = cmd.MarkFlagRequired("tool")

	_ = viper.BindPFlag("chunking.size", cmd.Flags().Lookup("chunk-size"))
	_ = viper.BindPFlag("chunking.overlap", cmd.Flags().Lookup("chunk-overlap"))

	return cmd
}

// reportView is the serializable shape of an ingest report.
type reportView struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Tool      string        `json:"tool" yaml:"tool"`
	Mode      string        `json:"mode" yaml:"mode"`
	Added     int           `json:"added" yaml:"added"`
	Updated   int           `json:"updated" yaml:"updated"`
	Deleted   int           `json:"deleted" yaml:"deleted"`
	Unchanged int           `json:"unchanged" yaml:"unchanged"`
	Errors    []fileErrView `json:"errors" yaml:"errors"`
	Duration  string        `json:"duration" yaml:"duration"`
}

type fileErrView struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

func toReportView(r *ingest.Report) reportView {
	errs := make([]fileErrView, len(r.Errors))
	for i, fe := range r.Errors {
		errs[i] = fileErrView{Path: fe.Path, Error: fe.Err.Error()}
	}
	return reportView{
		RunID:     r.RunID.String(),
		Tool:      r.Tool,
		Mode:      string(r.Mode),
		Added:     r.Added,
		Updated:   r.Updated,
		Deleted:   r.Deleted,
		Unchanged: r.Unchanged,
		Errors:    errs,
		Duration:  r.Duration.Round(time.Millisecond).String(),
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	toolName, _ := cmd.Flags().GetString("tool")
	modeStr, _ := cmd.Flags().GetString("mode")

	mode, err := ingest.ParseMode(modeStr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engines, err := WireEngines(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engines.Close() }()

	report, err := engines.Ingest.Run(cmd.Context(), toolName, mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Display.DefaultFormat != formatTable {
		return renderObject(out, cfg.Display.DefaultFormat, toReportView(report))
	}

	_, _ = fmt.Fprintf(out, "Ingested %q (mode %s): %d added, %d updated, %d deleted, %d unchanged in %s\n",
		report.Tool, report.Mode, report.Added, report.Updated, report.Deleted, report.Unchanged,
		report.Duration.Round(time.Millisecond))
	for _, fe := range report.Errors {
		_, _ = fmt.Fprintf(out, "  error: %s: %v\n", fe.Path, fe.Err)
	}
	if n := len(report.Errors); n > 0 {
		_, _ = fmt.Fprintf(out, "%d file(s) skipped due to errors\n", n)
	}
	return nil
}
