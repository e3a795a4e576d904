package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	"github.com/spf13/cobra"
)

func resetStepCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "reset-step <step_id>",
		Short: "Put a step stuck in running back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()
			app, err := runtime.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			if err := app.Service.ResetStep(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "step %s reset to pending\n", args[0])
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
