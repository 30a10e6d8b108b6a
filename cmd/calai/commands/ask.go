package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calai/calai-go/internal/logging"
)

// NewAskCmd constructs the `calai ask` command, which runs a single query
// through the pipeline and prints the answer with its grounding verdict.
func NewAskCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask a question against your notes and calendar",
		Long: `Ask the calai agent a natural language question.

The agent classifies the query, retrieves relevant knowledge-base passages
and calendar events, composes an evidence-backed answer, and reports how
well the answer is grounded. Event creation requests that are missing a
time or date prompt for the missing details; answer by re-running ask with
the same --session and just the missing values.

Examples:
  calai ask "what is the leave policy?"
  calai ask "what events are on my calendar tomorrow?"
  calai ask --session s1 "schedule a team sync tomorrow at 15:00"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.close()

			resp, err := rt.agent.Query(ctx, session, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Answer)
			if len(resp.References) > 0 {
				fmt.Printf("\nreferences: %s\n", strings.Join(resp.References, ", "))
			}
			fmt.Printf("grounding: %s (%.2f)\n", resp.Result, resp.Confidence)
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session ID for clarification follow-ups")

	return cmd
}
