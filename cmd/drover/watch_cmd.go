package main

import (
	"fmt"

	"github.com/averros/drover/internal/tui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of lanes, jobs and events",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	app := tui.New(apiAddr)
	if err := app.Run(); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}
	return nil
}
