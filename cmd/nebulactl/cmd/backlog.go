package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nebulateam/nebula/internal/outbox"
	"github.com/nebulateam/nebula/internal/scheduled"
)

// backlogCmd represents the backlog command
var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Show pending outbox and scheduled-notification rows",
	Long: `Show how many rows are waiting in the user outbox and the scheduled
notifications table. Rows disappear from both only after the broker
confirmed their publication, so these counts are the durable backlog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, dbDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		outboxDepth, err := outbox.NewStore(pool).Depth(ctx)
		if err != nil {
			return fmt.Errorf("outbox depth: %w", err)
		}
		scheduledDepth, err := scheduled.NewStore(pool).Depth(ctx)
		if err != nil {
			return fmt.Errorf("scheduled depth: %w", err)
		}

		if outputJSON {
			printOutput(map[string]int64{
				"outbox":    outboxDepth,
				"scheduled": scheduledDepth,
			})
			return nil
		}
		fmt.Printf("outbox:    %d pending\n", outboxDepth)
		fmt.Printf("scheduled: %d pending\n", scheduledDepth)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backlogCmd)
}
