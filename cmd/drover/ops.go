package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var lanesCmd = &cobra.Command{
	Use:   "lanes",
	Short: "Show execution lanes",
	RunE:  runLanes,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent events",
	RunE:  runEvents,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show operation metrics",
	RunE:  runMetrics,
}

var eventLimit int

func init() {
	eventsCmd.Flags().IntVar(&eventLimit, "limit", 50, "Number of events to show")
}

func runLanes(cmd *cobra.Command, args []string) error {
	var lanes []map[string]interface{}
	if err := apiGet("/lanes", &lanes); err != nil {
		return err
	}

	if len(lanes) == 0 {
		fmt.Println("No lanes yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LANE\tQUEUE\tACTIVE\tCOMPLETED\tFAILED\tCANCELLED")
	for _, l := range lanes {
		fmt.Fprintf(w, "%s\t%.0f\t%v\t%.0f\t%.0f\t%.0f\n",
			l["id"], l["queue_depth"].(float64), l["active"],
			l["completed"].(float64), l["failed"].(float64), l["cancelled"].(float64))
	}
	w.Flush()
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	var events []map[string]interface{}
	if err := apiGet(fmt.Sprintf("/events/history?limit=%d", eventLimit), &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events yet")
		return nil
	}

	for _, ev := range events {
		fmt.Printf("%6.0f  %s  %-14s  %s\n",
			ev["id"].(float64), ev["at"], ev["type"], ev["message"])
	}
	return nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	var entries []map[string]interface{}
	if err := apiGet("/metrics", &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No metrics yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tCOUNT\tOK\tERRORS\tLAST\tTOTAL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%.0f\t%.0fms\t%.0fms\n",
			e["name"], e["count"].(float64), e["success"].(float64), e["errors"].(float64),
			e["last_duration_ms"].(float64), e["total_duration_ms"].(float64))
	}
	w.Flush()
	return nil
}
