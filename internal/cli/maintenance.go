// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taxonomy/internal/database"
	"taxonomy/internal/store"
	"taxonomy/internal/tree"
)

// errInconsistent is returned by verify when the closure index has drifted.
var errInconsistent = errors.New("closure index does not match parent links")

var seedAfterMigrate bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if seedAfterMigrate {
			if err := database.Seed(db); err != nil {
				return err
			}
		}

		version, err := database.Version(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the closure index from parent links",
	Long: `Discards every closure row and derives the index again from the parent
column, under the same lock the API takes for mutations. Cached tree results
are invalidated and purged afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		treeCache, closeCache := openCache()
		defer closeCache()

		service := tree.NewService(store.NewCategoryStore(db, cfg.TreeTitleCaseInsensitive), treeCache, cfg.TreeMaxDepth)
		n, err := service.Reindex(cmd.Context())
		if err != nil {
			return err
		}
		purgeCache(cmd.Context(), treeCache)
		fmt.Fprintf(cmd.OutOrStdout(), "closure index rebuilt: %d rows\n", n)
		return nil
	},
}

// purgeCache drops cached tree results that a reindex has orphaned. Caches
// without a Purge method are left to expire on their own.
func purgeCache(ctx context.Context, c tree.Cache) {
	if p, ok := c.(interface{ Purge(context.Context) }); ok {
		p.Purge(ctx)
	}
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the closure index against parent links",
	Long:  `Read-only. Exits non-zero when rows are missing from or extra in the index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := store.NewCategoryStore(db, false).Verify(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func printReport(cmd *cobra.Command, report store.VerifyReport) error {
	if report.Consistent() {
		fmt.Fprintln(cmd.OutOrStdout(), "closure index consistent")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "closure index inconsistent: %d missing, %d extra (run `taxonomy reindex`)\n",
		report.Missing, report.Extra)
	return errInconsistent
}

func init() {
	migrateCmd.Flags().BoolVar(&seedAfterMigrate, "seed", false, "insert the sample tree into an empty database")
	rootCmd.AddCommand(migrateCmd, reindexCmd, verifyCmd)
}
