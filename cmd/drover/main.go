package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "drover - device fleet automation",
	Long:  `drover queues short-lived automation jobs against a fleet of remote devices, serializing work per device while devices run in parallel.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7511", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(lanesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
