package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "Replay the demo scenarios and compare outcomes with expectations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := loadFixture(cmd)
			if err != nil {
				return fmt.Errorf("failed to load fixture: %w", err)
			}
			p, data := newLocalPipeline(f, commandLogger(cmd))

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCENARIO\tUSER\tEXPECTED\tRESULT\tHOOKS")

			failed := 0
			for _, s := range pipeline.DemoScenarios() {
				user, err := data.LookupUser(cmd.Context(), s.UserID)
				if err != nil {
					return err
				}
				if user == nil {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\tSKIP (user missing)\t\n", s.ID, s.Name, s.User, s.Expected)
					failed++
					continue
				}
				resp, err := p.Run(cmd.Context(), pipeline.Request{UserID: s.UserID, Query: s.Query, Tools: s.Tools})
				if err != nil {
					return fmt.Errorf("scenario %d: %w", s.ID, err)
				}

				dept := user.Department
				if dept == "" && user.EmployeeID != nil {
					if e, _ := data.LookupEmployee(cmd.Context(), *user.EmployeeID); e != nil {
						dept = e.Department
					}
				}
				result := "PASS"
				if !s.Satisfied(resp, dept) {
					result = "FAIL"
					failed++
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%v\n", s.ID, s.Name, s.User, s.Expected, result, resp.HooksTriggered)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d scenario(s) did not match expectations", failed)
			}
			return nil
		},
	}
}
