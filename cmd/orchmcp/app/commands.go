// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the orchmcp command-line application.
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/api"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/config"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage/sqlite"
)

var rootCmd = &cobra.Command{
	Use:               "orchmcp",
	DisableAutoGenTag: true,
	Short:             "UiPath MCP bridge - expose Orchestrator processes as MCP tools",
	Long: `orchmcp is a multi-tenant bridge that exposes UiPath Orchestrator processes
as MCP (Model Context Protocol) tools. It provides:

- Per-tenant MCP endpoints over SSE and streamable HTTP
- Tool calls that start Orchestrator jobs and stream their progress
- A REST API for accounts, servers, tools, and UiPath credentials
- Per-server API tokens for headless MCP clients`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the orchmcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	err = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	if err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// newServeCmd creates the serve command for starting the bridge server
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server",
		Long: `Start the bridge server. It reads the configuration file specified by the
--config flag, opens the database, and serves the REST API and MCP endpoints
until interrupted.`,
		RunE: runServe,
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("orchmcp version: %s", getVersion())
		},
	}
}

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration file for syntax and semantic errors.

This command checks:
- YAML syntax validity
- Required fields presence
- Port, database, and timing value validity`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger.Infof("✓ Configuration is valid")
			logger.Infof("  Listen address: %s", cfg.ListenAddr())
			logger.Infof("  Database: %s", cfg.Database.Path)
			logger.Infof("  Job poll interval: %s", time.Duration(cfg.Jobs.PollInterval))
			logger.Infof("  Job max duration: %s", time.Duration(cfg.Jobs.MaxDuration))
			return nil
		},
	}
}

// getVersion returns the version string (will be set at build time)
func getVersion() string {
	// This will be replaced with actual version info using ldflags
	return "dev"
}

func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config flag")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg, err := config.LoadFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	return cfg, nil
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Infow("configuration loaded",
		"listen", cfg.ListenAddr(), "database", cfg.Database.Path)

	db, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	stores := api.Stores{
		Users:   sqlite.NewUserStore(db),
		Servers: sqlite.NewServerStore(db),
		Tools:   sqlite.NewToolStore(db),
	}
	return api.Serve(ctx, cfg, stores)
}
