package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	"github.com/spf13/cobra"
)

func planCMD() *cobra.Command {
	var goal string
	var execute bool
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "plan",
		Short: "Create a study plan and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goal == "" {
				return fmt.Errorf("--goal is required")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx, cancel := runtime.SignalContext(context.Background(), "plan")
			defer cancel()
			app, err := runtime.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			created, err := app.Service.CreatePlan(ctx, goal)
			if err != nil {
				return err
			}
			var out interface{} = created
			if execute {
				ids := make([]string, 0, len(created.Plan.Steps))
				for _, st := range created.Plan.Steps {
					ids = append(ids, st.ID)
				}
				report := app.Service.ExecuteSteps(ctx, ids)
				view, err := app.Service.GetPlan(ctx, created.PlanID)
				if err != nil {
					return err
				}
				out = map[string]interface{}{"plan": view, "report": report}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "learning goal")
	cmd.Flags().BoolVar(&execute, "execute", false, "run every step after creating the plan")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
