package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage jobs",
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job",
	RunE:  runJobSubmit,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobList,
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a queued job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobCancel,
}

var jobRetryCmd = &cobra.Command{
	Use:   "retry [job-id]",
	Short: "Retry a finished job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobRetry,
}

var (
	jobType     string
	jobDevice   string
	jobURL      string
	jobWorkflow string
	jobInput    string
)

func init() {
	jobCmd.AddCommand(jobSubmitCmd, jobListCmd, jobShowCmd, jobCancelCmd, jobRetryCmd)

	jobSubmitCmd.Flags().StringVar(&jobType, "type", "", "Job type: open_url, snapshot_suite, stress_run, workflow_run, device_profile (required)")
	jobSubmitCmd.Flags().StringVar(&jobDevice, "device", "", "Target device id (empty routes to the default lane)")
	jobSubmitCmd.Flags().StringVar(&jobURL, "url", "", "URL for open_url jobs")
	jobSubmitCmd.Flags().StringVar(&jobWorkflow, "workflow", "", "Workflow name for workflow_run jobs")
	jobSubmitCmd.Flags().StringVar(&jobInput, "input", "", "Extra input as a JSON object")
	jobSubmitCmd.MarkFlagRequired("type")
}

func runJobSubmit(cmd *cobra.Command, args []string) error {
	input := map[string]interface{}{}
	if jobInput != "" {
		if err := json.Unmarshal([]byte(jobInput), &input); err != nil {
			return fmt.Errorf("parsing --input: %w", err)
		}
	}
	if jobDevice != "" {
		input["device_id"] = jobDevice
	}
	if jobURL != "" {
		input["url"] = jobURL
	}
	if jobWorkflow != "" {
		input["workflow"] = jobWorkflow
	}

	body := map[string]interface{}{
		"type":  jobType,
		"input": input,
	}

	var job map[string]interface{}
	if err := apiPost("/jobs", body, &job); err != nil {
		return err
	}

	fmt.Printf("Queued job %.0f (%s) on %s\n", job["id"].(float64), job["type"], job["lane_id"])
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	var list []map[string]interface{}
	if err := apiGet("/jobs", &list); err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tLANE\tSTATUS\tDURATION")
	for _, j := range list {
		fmt.Fprintf(w, "%.0f\t%s\t%s\t%s\t%.0fms\n",
			j["id"].(float64), j["type"], j["lane_id"], j["status"], j["duration_ms"].(float64))
	}
	w.Flush()
	return nil
}

func runJobShow(cmd *cobra.Command, args []string) error {
	var job map[string]interface{}
	if err := apiGet("/jobs/"+args[0], &job); err != nil {
		return err
	}

	fmt.Printf("ID:       %.0f\n", job["id"].(float64))
	fmt.Printf("Type:     %s\n", job["type"])
	fmt.Printf("Lane:     %s\n", job["lane_id"])
	if dev, ok := job["device_id"].(string); ok && dev != "" {
		fmt.Printf("Device:   %s\n", dev)
	}
	fmt.Printf("Status:   %s\n", job["status"])
	fmt.Printf("Created:  %s\n", job["created_at"])
	if started, ok := job["started_at"].(string); ok {
		fmt.Printf("Started:  %s\n", started)
	}
	if finished, ok := job["finished_at"].(string); ok {
		fmt.Printf("Finished: %s\n", finished)
	}
	fmt.Printf("Duration: %.0fms\n", job["duration_ms"].(float64))
	if errMsg, ok := job["error"].(string); ok && errMsg != "" {
		fmt.Printf("Error:    %s\n", errMsg)
	}
	if result, ok := job["result"].(map[string]interface{}); ok {
		pretty, _ := json.MarshalIndent(result, "", "  ")
		fmt.Printf("Result:\n%s\n", pretty)
	}
	return nil
}

func runJobCancel(cmd *cobra.Command, args []string) error {
	if err := apiPost("/jobs/"+args[0]+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Cancelled job %s\n", args[0])
	return nil
}

func runJobRetry(cmd *cobra.Command, args []string) error {
	var job map[string]interface{}
	if err := apiPost("/jobs/"+args[0]+"/retry", nil, &job); err != nil {
		return err
	}

	fmt.Printf("Retried job %s as job %.0f\n", args[0], job["id"].(float64))
	return nil
}
