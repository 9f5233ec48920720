package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cecad-imaging/omerowatch/pkg/watcher"
	"github.com/spf13/cobra"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the descriptor directory and fetch every image dropped into it",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Process the descriptors present now and exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := watcher.New(rt.cfg.WatchDir, rt.pipeline, watcher.Options{
		SettleDelay: rt.cfg.SettleDelay,
		ScanOnStart: rt.cfg.ScanOnStart,
	})

	if watchOnce {
		summary, err := w.Scan(ctx)
		if err != nil {
			return err
		}
		slog.Info("watch_once_complete", "processed", summary.Processed, "failed", summary.Failed)
		return nil
	}

	return w.Run(ctx)
}
