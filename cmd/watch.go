package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/queue/streams"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func watchCMD() *cobra.Command {
	var from string
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "watch",
		Short: "Tail agent interactions and step transitions from the redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			rc := cfg.Storage.Redis
			if !rc.Enabled() {
				return fmt.Errorf("storage.redis.host not configured")
			}
			ctx, cancel := runtime.SignalContext(context.Background(), "watch")
			defer cancel()

			rdb := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(rc.Host, rc.Port), Password: rc.Password, DB: rc.DB})
			defer rdb.Close()
			registry, err := streams.NewDefaultRegistry()
			if err != nil {
				return err
			}
			tail := streams.NewTailer(rdb, registry, rc.Stream, from)
			out := cmd.OutOrStdout()
			for {
				msgs, err := tail.Next(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, m := range msgs {
					fmt.Fprintln(out, describe(m))
				}
			}
		},
	}
	cmd.Flags().StringVar(&from, "from", "$", "stream id to start after (0 replays everything)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}

func describe(m streams.Message) string {
	env := m.Envelope
	switch env.EventType {
	case streams.EventInteractionLogged:
		ev, err := streams.DecodeInteraction(env)
		if err != nil {
			return fmt.Sprintf("%s %s (undecodable: %v)", m.ID, env.EventType, err)
		}
		return fmt.Sprintf("%s [%s] %s: %d chars in, %d chars out", m.ID, env.OccurredAt.Format("15:04:05"), ev.Agent, len(ev.Prompt), len(ev.Response))
	default:
		return fmt.Sprintf("%s [%s] %s %s", m.ID, env.OccurredAt.Format("15:04:05"), env.EventType, string(env.Data))
	}
}
