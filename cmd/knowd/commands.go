package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aneven/knowd/internal/config"
	"github.com/aneven/knowd/internal/engine"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			var health struct {
				Status string `json:"status"`
				Chunks int    `json:"chunks"`
				Ollama bool   `json:"ollama"`
			}
			if decodeJSON(resp, &health) == nil {
				printStatus("Server", "running on port %d", cfg.Server.Port)
				printStatus("Chunks", "%d", health.Chunks)
				if health.Ollama {
					printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
				} else {
					printStatus("Ollama", "not reachable (keyword-only retrieval)")
				}
			} else {
				printStatus("Server", "error")
			}
		}

		printStatus("Gen model", "%s", cfg.Ollama.GenModel)
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		maxResults, _ := cmd.Flags().GetInt("max-results")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		noExpansion, _ := cmd.Flags().GetBool("no-expansion")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := engine.NewRequest()
		req.Query = args[0]
		req.Role = role
		req.MaxResults = maxResults
		req.UseCache = !noCache
		req.UseExpansion = !noExpansion

		resp, err := client.post(cmd.Context(), "/query", req)
		if err != nil {
			return err
		}

		var result engine.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Println()
			for i, s := range result.Sources {
				fmt.Printf("[%d] %s (%s, score %.3f)\n", i+1, s.ChunkID, s.Category, s.Score)
			}
		}
		if result.Cached {
			printStatus("Cached", "yes")
		}
		if result.Degraded {
			printWarning("degraded response: some retrieval signals were unavailable")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("role", "service", "role to query as")
	askCmd.Flags().Int("max-results", 0, "maximum supporting documents (default from config)")
	askCmd.Flags().Bool("no-cache", false, "bypass the response cache")
	askCmd.Flags().Bool("no-expansion", false, "skip LLM query expansion")
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Manage feedback training data",
}

var trainProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Convert unprocessed feedback into training pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/training/process", nil)
		if err != nil {
			return err
		}

		var report struct {
			Processed    int `json:"processed"`
			PairsCreated int `json:"pairs_created"`
			Skipped      int `json:"skipped"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Processed %d feedback records, created %d pairs (%d skipped)",
			report.Processed, report.PairsCreated, report.Skipped)
		return nil
	},
}

var trainExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export training pairs to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		minQuality, _ := cmd.Flags().GetFloat64("min-quality")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/training/export", map[string]any{
			"format":      format,
			"min_quality": minQuality,
		})
		if err != nil {
			return err
		}

		var report struct {
			Path    string `json:"path"`
			Pairs   int    `json:"pairs"`
			Skipped int    `json:"skipped"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Exported %d pairs to %s (%d skipped)", report.Pairs, report.Path, report.Skipped)
		return nil
	},
}

var trainStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feedback and training statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/training/stats")
		if err != nil {
			return err
		}

		var stats struct {
			Feedback struct {
				Total     int     `json:"total"`
				Processed int     `json:"processed"`
				AvgRating float64 `json:"avg_rating"`
				Positive  int     `json:"positive"`
				Negative  int     `json:"negative"`
			} `json:"feedback"`
			Training struct {
				TotalPairs  int     `json:"total_pairs"`
				AvgQuality  float64 `json:"avg_quality"`
				NeedsReview int     `json:"needs_review"`
			} `json:"training"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Feedback", "%d total, %d processed", stats.Feedback.Total, stats.Feedback.Processed)
		printStatus("Avg rating", "%.2f", stats.Feedback.AvgRating)
		printStatus("Positive", "%d", stats.Feedback.Positive)
		printStatus("Negative", "%d", stats.Feedback.Negative)
		printStatus("Pairs", "%d (avg quality %.2f)", stats.Training.TotalPairs, stats.Training.AvgQuality)
		printStatus("Needs review", "%d", stats.Training.NeedsReview)
		return nil
	},
}

var trainSyntheticCmd = &cobra.Command{
	Use:   "synthetic",
	Short: "Seed a hand-written training pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		quality, _ := cmd.Flags().GetFloat64("quality")

		if input == "" || output == "" {
			return fmt.Errorf("both --input and --output are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/training/synthetic", map[string]any{
			"input":   input,
			"output":  output,
			"quality": quality,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added synthetic pair %s", result["id"])
		return nil
	},
}

func init() {
	trainExportCmd.Flags().String("format", "jsonl", "export format: jsonl or csv")
	trainExportCmd.Flags().Float64("min-quality", 0, "minimum quality score to export")

	trainSyntheticCmd.Flags().String("input", "", "example question")
	trainSyntheticCmd.Flags().String("output", "", "ideal answer")
	trainSyntheticCmd.Flags().Float64("quality", 5.0, "quality score (1-5)")

	trainCmd.AddCommand(trainProcessCmd)
	trainCmd.AddCommand(trainExportCmd)
	trainCmd.AddCommand(trainStatsCmd)
	trainCmd.AddCommand(trainSyntheticCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("%-32s %-36s %s\n", k.Key, k.EnvVar, k.Value)
		}
		return nil
	},
}
