package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alextanhongpin/friendlist/config"
	"github.com/alextanhongpin/friendlist/domain"
	"github.com/alextanhongpin/friendlist/infra"
	"github.com/spf13/cobra"
)

var (
	watchRedisAddr string
	watchChannel   string
	watchUser      string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Prints graph changes published to redis by friendlist servers",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

func init() {
	flags := watchCmd.Flags()
	flags.StringVar(&watchRedisAddr, "redis-addr", "localhost:6379", "redis address")
	flags.StringVar(&watchChannel, "channel", config.DefaultRedisChannel, "channel the servers publish to")
	flags.StringVar(&watchUser, "user", "", "only print changes involving this user")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := infra.NewRedis(ctx, watchRedisAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	return infra.WatchChanges(ctx, client, watchChannel, logger, func(c domain.Change) {
		if watchUser != "" && !c.Involves(watchUser) {
			return
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", c.Kind, c.User, c.Friend)
	})
}

