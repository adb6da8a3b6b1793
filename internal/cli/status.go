package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusJSON bool
	statusList bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and ledger state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().BoolVar(&statusList, "list", false, "list processed files")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := openApp(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.pipeline.Status()
	if err != nil {
		return err
	}
	entries, err := a.pipeline.Processed()
	if err != nil {
		return err
	}

	drift, reason := a.configDrift()

	if statusJSON {
		out := struct {
			Status      interface{} `json:"status"`
			ConfigDrift bool        `json:"config_drift"`
			Files       interface{} `json:"files,omitempty"`
		}{Status: st, ConfigDrift: drift}
		if statusList {
			out.Files = entries
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Database:         %s\n", st.DBFolder)
	fmt.Printf("Processed folder: %s\n", st.ProcessedFolder)
	fmt.Printf("Initialized:      %v\n", st.Initialized)
	fmt.Printf("Chunks:           %d\n", st.Chunks)
	fmt.Printf("Processed files:  %d\n", st.Processed)
	fmt.Printf("Embedding model:  %s\n", st.EmbeddingModel)
	if st.LLMModel != "" {
		fmt.Printf("LLM model:        %s\n", st.LLMModel)
	}
	if drift {
		fmt.Printf("\nWarning: %s\n", reason)
	}

	if statusList && len(entries) > 0 {
		fmt.Println()
		for _, e := range entries {
			fmt.Printf("  %-40s %4d chunks  %s\n", e.Name, e.Chunks, e.IngestedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
