package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:   "studybuddy",
		Short: "Study plan generator and runner",
	}

	root.AddCommand(serveCMD(), migrateCMD(), ingestCMD(), mcpCMD(), planCMD(), watchCMD(), resetStepCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
