// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// renderObject writes v as JSON or YAML. Table rendering is per-command since
// every command has its own columns.
func renderObject(out io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return grimerr.Wrap(err, grimerr.CodeCLISetupFailure, "encoding output as json")
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return grimerr.Wrap(err, grimerr.CodeCLISetupFailure, "encoding output as yaml")
		}
		_, err = out.Write(data)
		return err
	default:
		return grimerr.Errorf(grimerr.CodeCLIInputInvalid, "unknown output format %q", format)
	}
}

// renderTable writes one header row and the given rows through a tabwriter.
func renderTable(out io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	for i, h := range headers {
		if i > 0 {
			_, _ = fmt.Fprint(tw, "\t")
		}
		_, _ = fmt.Fprint(tw, h)
	}
	_, _ = fmt.Fprintln(tw)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				_, _ = fmt.Fprint(tw, "\t")
			}
			_, _ = fmt.Fprint(tw, cell)
		}
		_, _ = fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// truncate shortens s to max runes for table cells, appending an ellipsis
// when anything was cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
