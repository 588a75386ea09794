// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package cli defines the taxonomy command tree: the API server plus the
// maintenance commands that share its configuration.
package cli

import (
	"database/sql"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"taxonomy/internal/cache"
	"taxonomy/internal/config"
	"taxonomy/internal/database"
	"taxonomy/internal/tree"
)

var (
	// envFile is loaded before the configuration is read.
	envFile string

	// cfg is populated by the root command's pre-run hook.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Category tree service backed by a closure table.",
	Long: `taxonomy maintains a single category hierarchy in PostgreSQL and serves it
over a JSON API. Ancestor, descendant and depth queries are answered from a
closure index that every mutation keeps in sync.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		slog.SetDefault(newLogger(os.Stdout, cfg))
		return nil
	},
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of KEY=VALUE pairs loaded before the environment is read")
}

// newLogger returns a structured logger: text in development, JSON otherwise.
func newLogger(w io.Writer, c *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.IsDev() {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openDB connects to PostgreSQL and brings the schema up to date.
func openDB() (*sql.DB, error) {
	db, err := database.Connect(cfg.DSN(), cfg.DBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openCache connects the tree result cache. Valkey is optional: when it is
// unreachable the service runs uncached and the returned cache is nil.
func openCache() (tree.Cache, func()) {
	client, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Warn("valkey unavailable, tree results will not be cached", "error", err)
		return nil, func() {}
	}
	return cache.NewTreeCache(client, cfg.CacheTTL), func() { client.Close() }
}
