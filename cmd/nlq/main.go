package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kavia-common/data-insight-assistant/internal/nlq"
)

var rootCmd = &cobra.Command{
	Use:   "nlq",
	Short: "Natural language query tools for the data insight assistant",
}

var explainCmd = &cobra.Command{
	Use:   "explain <phrase>",
	Short: "Translate a phrase into its structured query descriptor",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phrase := strings.Join(args, " ")
		atFlag, _ := cmd.Flags().GetString("at")
		now := time.Now().UTC()
		if atFlag != "" {
			parsed, err := time.Parse(time.RFC3339, atFlag)
			if err != nil {
				return fmt.Errorf("invalid --at timestamp: %w", err)
			}
			now = parsed
		}

		desc := nlq.Parse(phrase, now)
		out, err := json.MarshalIndent(desc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <phrase>",
	Short: "Run a phrase against a running server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phrase := strings.Join(args, " ")
		baseURL, _ := cmd.Flags().GetString("server")

		body, err := json.Marshal(map[string]interface{}{"query": phrase})
		if err != nil {
			return err
		}
		resp, err := http.Post(strings.TrimRight(baseURL, "/")+"/nlq/query", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(pretty.String())
		return nil
	},
}

func main() {
	explainCmd.Flags().String("at", "", "Reference time for relative dates (RFC3339, default now)")
	queryCmd.Flags().String("server", "http://localhost:8080", "Base URL of the running server")
	rootCmd.AddCommand(explainCmd, queryCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
