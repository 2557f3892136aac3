package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL     string
	apiKey        string
	timeoutMillis int64
	cores         int
	timeLimit     int
	jsonOutput    bool
)

func main() {
	root := &cobra.Command{
		Use:   "dafny-bridge-cli",
		Short: "CLI client for the Dafny verifier bridge",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("VERIFIER_API_KEY"), "API key")

	// Verify command
	verifyCmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify a Dafny source file (stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify("verify", args)
		},
	}
	addRunFlags(verifyCmd)
	root.AddCommand(verifyCmd)

	// Resolve command: parse and type-check only
	resolveCmd := &cobra.Command{
		Use:   "resolve [file]",
		Short: "Parse and type-check a Dafny source file without verifying",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify("resolve", args)
		},
	}
	addRunFlags(resolveCmd)
	root.AddCommand(resolveCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	// List runs
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent verification runs",
		RunE:  runList,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&timeoutMillis, "timeout", 60000, "Run timeout in milliseconds")
	cmd.Flags().IntVar(&cores, "cores", 0, "Cores the verifier may use (0 = verifier default)")
	cmd.Flags().IntVar(&timeLimit, "time-limit", 0, "Per-assertion-batch time limit in seconds")
	cmd.Flags().BoolVar(&jsonOutput, "json-output", false, "Request the verifier's JSON output")
}

func runVerify(mode string, args []string) error {
	var source string

	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		source = string(data)
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		source = string(data)
	}

	payload := map[string]any{
		"source":         source,
		"mode":           mode,
		"timeout_millis": timeoutMillis,
		"options": map[string]any{
			"cores":                   cores,
			"verification_time_limit": timeLimit,
			"json_output":             jsonOutput,
		},
	}

	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: time.Duration(timeoutMillis)*time.Millisecond + 30*time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	// Pretty print
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	// Non-verified outcomes exit 1 so the CLI composes in scripts
	if outcome, ok := result["outcome"].(string); ok && outcome != "verified" {
		os.Exit(1)
	}

	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	req, _ := http.NewRequest("GET", serverURL+"/runs", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
