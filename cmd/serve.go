package main

import (
	"context"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	srv "github.com/mohammad-safakhou/studybuddy/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			ctx, cancel := runtime.SignalContext(context.Background(), "serve")
			defer cancel()
			return srv.Run(ctx, cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
