package main

import (
	"fmt"
	"io"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/dbconfig"
	"github.com/mcdev12/staffdraft/go/internal/models"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and load the participant and consultant catalog",
	}
	cmd.AddCommand(newCatalogCheckCmd(), newCatalogSeedCmd())
	return cmd
}

func newCatalogCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a YAML catalog and print what it contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := catalog.NewYAMLSource(file).Load(cmd.Context())
			if err != nil {
				return err
			}
			printCatalogSummary(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "catalog file")
	return cmd
}

func printCatalogSummary(w io.Writer, snap *catalog.Snapshot) {
	roles := map[models.Category]int{}
	for _, c := range snap.Consultants() {
		roles[c.Role]++
	}
	fmt.Fprintf(w, "participants: %d\n", len(snap.Participants()))
	fmt.Fprintf(w, "consultants:  %d (NC %d, EC %d)\n",
		len(snap.Consultants()), roles[models.CategoryNC], roles[models.CategoryEC])
	for _, p := range snap.Participants() {
		fmt.Fprintf(w, "  %s (%s): %d projects\n", p.ID, p.Name, len(snap.ProjectsFor(p.ID)))
	}
}

func newCatalogSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a YAML catalog to Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := catalog.ReadFile(file)
			if err != nil {
				return err
			}

			var db dbconfig.Config
			if err := env.ParseWithOptions(&db, env.Options{Prefix: "DB_"}); err != nil {
				return fmt.Errorf("parse env: %w", err)
			}
			pool, err := setupPool(cmd.Context(), db)
			if err != nil {
				return err
			}
			defer pool.Close()

			results, err := catalog.Seed(cmd.Context(), pool, f)
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "catalog file")
	return cmd
}
