package main

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xyself/blivedm/internal/config"
	"github.com/xyself/blivedm/internal/errors"
	"github.com/xyself/blivedm/pkg/archive"
)

func historyCmd(g *globalFlags) *cobra.Command {
	var (
		sqlite string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history <room-id>",
		Short: "Print archived notifications of a room",
		Long: `Print the newest notifications archived for a room in the SQLite
archive, one JSON record per line, newest first. The room id is the
canonical id recorded by the session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || room <= 0 {
				return errors.Newf(errors.CategoryCLI, "invalid room id %q", args[0])
			}
			cfg, err := config.Load(g.configDir)
			if err != nil {
				return err
			}
			if sqlite != "" {
				cfg.Archive.SQLite = sqlite
			}
			if cfg.Archive.SQLite == "" {
				return errors.Newf(errors.CategoryCLI, "no SQLite archive configured").
					WithSuggestion("Pass --sqlite or set BLIVEDM_ARCHIVE_SQLITE")
			}

			db, err := archive.OpenSQLite(cfg.Archive.SQLite)
			if err != nil {
				return errors.New("E301").Wrap(err)
			}
			defer db.Close()

			records, err := db.Recent(cmd.Context(), room, limit)
			if err != nil {
				return errors.New("E301").Wrap(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlite, "sqlite", "", "SQLite archive to read")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to print")
	return cmd
}
