// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

func newToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage document collections",
		Long:  "Add, list, update, remove, enable, and disable the document collections served as search tools.",
	}

	cmd.AddCommand(
		newToolAddCmd(),
		newToolListCmd(),
		newToolUpdateCmd(),
		newToolRemoveCmd(),
		newToolEnableCmd(),
		newToolDisableCmd(),
	)

	return cmd
}

func newToolAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new tool",
		Long:  "Register a named document collection bound to a source directory and provision its storage.",
		RunE:  runToolAdd,
	}

	cmd.Flags().StringP("name", "n", "", "tool name")
	cmd.Flags().StringP("description", "d", "", "tool description")
	cmd.Flags().StringP("source", "s", "", "source directory to ingest from")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runToolAdd(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	source, _ := cmd.Flags().GetString("source")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tool, err := st.Register(cmd.Context(), name, description, source)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added tool %q (id %d) with source %s\n",
		tool.Name, tool.ID, tool.SourceDirectory)
	return err
}

func newToolListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE:  runToolList,
	}

	cmd.Flags().Bool("all", false, "include disabled tools")

	return cmd
}

// toolView is the serializable shape of a tool for json/yaml output.
type toolView struct {
	ID              int64     `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	Description     string    `json:"description" yaml:"description"`
	SourceDirectory string    `json:"source_directory" yaml:"source_directory"`
	Active          bool      `json:"active" yaml:"active"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

func toToolView(t *store.Tool) toolView {
	return toolView{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		SourceDirectory: t.SourceDirectory,
		Active:          t.Active,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func runToolList(cmd *cobra.Command, _ []string) error {
	includeInactive, _ := cmd.Flags().GetBool("all")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tools, err := st.List(cmd.Context(), includeInactive)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Display.DefaultFormat != formatTable {
		views := make([]toolView, len(tools))
		for i, t := range tools {
			views[i] = toToolView(t)
		}
		return renderObject(out, cfg.Display.DefaultFormat, views)
	}

	if len(tools) == 0 {
		_, err := fmt.Fprintln(out, "No tools registered")
		return err
	}

	rows := make([][]string, len(tools))
	for i, t := range tools {
		active := "yes"
		if !t.Active {
			active = "no"
		}
		rows[i] = []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			truncate(t.Description, 40),
			t.SourceDirectory,
			active,
		}
	}
	return renderTable(out, []string{"ID", "NAME", "DESCRIPTION", "SOURCE", "ACTIVE"}, rows)
}

func newToolUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update a tool's description or source directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolUpdate,
	}

	cmd.Flags().StringP("description", "d", "", "new description")
	cmd.Flags().StringP("source", "s", "", "new source directory")

	return cmd
}

func runToolUpdate(cmd *cobra.Command, args []string) error {
	name := args[0]

	var upd store.ToolUpdate
	if cmd.Flags().Changed("description") {
		description, _ := cmd.Flags().GetString("description")
		upd.Description = &description
	}
	if cmd.Flags().Changed("source") {
		source, _ := cmd.Flags().GetString("source")
		upd.SourceDirectory = &source
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tool, err := st.Update(cmd.Context(), name, upd)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Updated tool %q\n", tool.Name)
	return err
}

func newToolRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a tool and all its stored documents",
		Long:  "Remove the catalog entry and drop the tool's document and vector tables. Irreversible; requires --yes.",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolRemove,
	}

	cmd.Flags().Bool("yes", false, "confirm the irreversible removal")

	return cmd
}

func runToolRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	confirmed, _ := cmd.Flags().GetBool("yes")
	if !confirmed {
		return grimerr.Errorf(grimerr.CodeRegistryDeleteUnconfirmed,
			"removing %q deletes all its stored documents; re-run with --yes to confirm", name)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.Delete(cmd.Context(), name); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed tool %q\n", name)
	return err
}

func newToolEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a tool for search and MCP dispatch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolSetActive(cmd, args[0], true)
		},
	}
}

func newToolDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a tool without deleting its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolSetActive(cmd, args[0], false)
		},
	}
}

func runToolSetActive(cmd *cobra.Command, name string, active bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.SetActive(cmd.Context(), name, active); err != nil {
		return err
	}

	verb := "Enabled"
	if !active {
		verb = "Disabled"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s tool %q\n", verb, name)
	return err
}
