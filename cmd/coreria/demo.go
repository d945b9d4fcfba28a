package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coreria/internal/actors"
	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
	"github.com/MRamiBalles/coreria/internal/platform/metrics"
)

func demoCmd() *cobra.Command {
	var (
		duration float64
		rate     float64
		players  int
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a short simulation with logging players",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, cmd.OutOrStdout(), appLog, duration, rate, players)
		},
	}
	cmd.Flags().Float64VarP(&duration, "duration", "d", 0.2, "simulated seconds to run")
	cmd.Flags().Float64VarP(&rate, "rate", "r", 5, "ticks per second")
	cmd.Flags().IntVarP(&players, "players", "p", 1, "number of players")
	return cmd
}

// runDemo runs the players and writes a summary to out. An interrupted run
// still prints what it got through and exits cleanly.
func runDemo(ctx context.Context, out io.Writer, log *logger.Logger, duration, rate float64, players int) error {
	m := metrics.NewCollector()
	eng := engine.NewEngine(engine.WithObserver(m))
	ps := make([]*actors.Player, 0, players)
	for i := 0; i < players; i++ {
		p := actors.NewPlayer(fmt.Sprintf("player-%d", i+1), log)
		ps = append(ps, p)
		eng.AddEntity(p)
	}

	if err := eng.Run(ctx, duration, rate); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("interrupted, stopping demo")
	}

	for _, p := range ps {
		fmt.Fprintf(out, "%s: %d updates, %.3fs simulated\n", p.Name, p.Updates, p.Elapsed)
	}
	tick := m.Snapshot()["tick"].(map[string]interface{})
	fmt.Fprintf(out, "ticks=%d overruns=%d\n", tick["count"], tick["overruns"])
	return nil
}
