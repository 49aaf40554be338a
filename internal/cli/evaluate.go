package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

func newEvaluateCmd() *cobra.Command {
	var (
		userID int64
		query  string
		tools  []string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one query through the guardrail pipeline and print the JSON response",
		Example: `  guardrailctl evaluate --user-id 5 --query "What is Alisha's salary?"
  guardrailctl evaluate --user-id 4 --query "market rates" --tools web_search`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("--query is required")
			}
			f, err := loadFixture(cmd)
			if err != nil {
				return fmt.Errorf("failed to load fixture: %w", err)
			}
			p, _ := newLocalPipeline(f, commandLogger(cmd))

			req := pipeline.Request{UserID: userID, Query: query}
			if cmd.Flags().Changed("tools") {
				req.Tools = tools
			}
			resp, err := p.Run(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("evaluate: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "Requesting user id")
	cmd.Flags().StringVar(&query, "query", "", "Natural-language query")
	cmd.Flags().StringSliceVar(&tools, "tools", nil, "Requested tools (default: database_query)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
