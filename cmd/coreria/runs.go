package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coreria/internal/infra/storage"
)

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.InitSQLite(cfg.DBPath, 1, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := storage.NewSQLiteRunRepository(db).List(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tSTARTED\tRATE\tTICKS\tELAPSED\tWALL\tREASON\n")
			for _, r := range runs {
				reason := r.Reason
				if r.FinishedAt == nil {
					reason = "running"
				}
				fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%.2fs\t%s\t%s\n",
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					r.TickRate,
					r.Ticks,
					r.Elapsed,
					time.Duration(r.WallMS)*time.Millisecond,
					reason,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	return cmd
}
