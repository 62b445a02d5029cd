// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grimoire-dev/grimoire/internal/config"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// NewRootCmd creates the root grimoire command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "grimoire",
		Short:         "Grimoire — per-category document search served over MCP",
		Long:          "Grimoire ingests directories of documents into per-category vector stores and serves similarity search over them, one MCP tool per category.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags — these map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("db", "", "path to the SQLite database file")
	root.PersistentFlags().StringP("output", "o", "", "output format: table, json, or yaml")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Register subcommands
	root.AddCommand(
		newToolCmd(),
		newIngestCmd(),
		newSearchCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return grimerr.Errorf(grimerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover grimoire.yaml from standard locations.
		// Note: SetConfigType is intentionally omitted. When set, Viper
		// falls back to trying the bare config name without extension,
		// which collides with the ./grimoire binary in the project root.
		v.SetConfigName("grimoire")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/grimoire")
		v.AddConfigPath("/etc/grimoire")
		// No config file is fine — defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return grimerr.Errorf(grimerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere — bootstrap a default to ~/.config/grimoire/.
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return grimerr.Errorf(grimerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	config.WarnInsecurePermissions(v.ConfigFileUsed())

	// Bind persistent flags to viper keys.
	if err := v.BindPFlag("database.path", cmd.Root().PersistentFlags().Lookup("db")); err != nil {
		return grimerr.Errorf(grimerr.CodeCLISetupFailure, "binding db flag: %w", err)
	}
	if err := v.BindPFlag("display.default_format", cmd.Root().PersistentFlags().Lookup("output")); err != nil {
		return grimerr.Errorf(grimerr.CodeCLISetupFailure, "binding output flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return grimerr.Errorf(grimerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	if v.GetBool("verbose") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	return nil
}

// loadConfig resolves the validated configuration from the global viper
// state prepared by initViper.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}
