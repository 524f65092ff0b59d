// Package cli holds operator commands bundled with the sabha binary.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/sabha-admin/sabha/jobs"
)

// Factory opens the jobs helpers on demand so that commands which fail flag
// validation never dial Redis.
type Factory func() (*JobsCLI, error)

// Run executes args against the command tree.
func Run(ctx context.Context, redis asynq.RedisClientOpt, args []string, out io.Writer) error {
	root := NewRootCommand(func() (*JobsCLI, error) { return NewJobsCLI(redis) }, out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the sabha command tree.
func NewRootCommand(factory Factory, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "sabha",
		Short:         "Sabha admin server and operator commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.AddCommand(newJobsCommand(factory))
	return root
}

func newJobsCommand(factory Factory) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	triggerCmd := &cobra.Command{
		Use:       "trigger [job]",
		Short:     "Enqueue a job now",
		ValidArgs: TriggerNames(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			recipient, _ := cmd.Flags().GetString("recipient")
			types, _ := cmd.Flags().GetStringSlice("type")
			if strings.TrimSpace(recipient) == "" {
				return fmt.Errorf("--recipient is required for %s", args[0])
			}
			helper, err := factory()
			if err != nil {
				return err
			}
			defer helper.Close()
			info, err := helper.Trigger(cmd.Context(), args[0], TriggerArgs{
				From:      from,
				To:        to,
				Types:     types,
				Recipient: recipient,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	triggerCmd.Flags().String("from", "", "first day (YYYY-MM-DD), defaults to yesterday")
	triggerCmd.Flags().String("to", "", "last day (YYYY-MM-DD), inclusive")
	triggerCmd.Flags().StringSlice("type", nil, "event types to include")
	triggerCmd.Flags().String("recipient", "", "mail recipient")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			helper, err := factory()
			if err != nil {
				return err
			}
			defer helper.Close()
			queue, _ := cmd.Flags().GetString("queue")
			s, err := helper.InspectQueue(cmd.Context(), queue)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			return nil
		},
	}
	stats.Flags().String("queue", jobs.QueueDefault, "queue to inspect (default or mail)")

	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			queue, _ := cmd.Flags().GetString("queue")
			helper, err := factory()
			if err != nil {
				return err
			}
			defer helper.Close()
			tasks, err := helper.ListScheduled(cmd.Context(), queue, size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	scheduled.Flags().Int("size", 10, "page size")
	scheduled.Flags().String("queue", jobs.QueueDefault, "queue to list (default or mail)")

	jobsCmd.AddCommand(triggerCmd, stats, scheduled)
	return jobsCmd
}
