package main

import (
	"context"
	"log"
	"os"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/mcpserver"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	"github.com/spf13/cobra"
)

func mcpCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the study tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries JSON-RPC; keep logs on stderr
			log.SetOutput(os.Stderr)
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()
			app, err := runtime.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			return mcpserver.New(app.Service, app.Searcher, cfg.Retrieval.TopK, runtime.Version).ServeStdio()
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
