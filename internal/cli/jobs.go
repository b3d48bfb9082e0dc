package cli

import (
	"encoding/json"
	"os"

	"gamification-service/internal/events"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncLeaderboardCmd)
	rootCmd.AddCommand(reprocessBadgesCmd)

	reprocessBadgesCmd.Flags().StringP("user", "u", "", "Only re-evaluate this user id")
}

var syncLeaderboardCmd = &cobra.Command{
	Use:   "sync-leaderboard",
	Short: "Rebuild the Redis leaderboard from PostgreSQL once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), events.NopPublisher{})
		if err != nil {
			return err
		}
		defer a.close()

		return a.synchronizer.RunOnce(cmd.Context())
	},
}

var reprocessBadgesCmd = &cobra.Command{
	Use:   "reprocess-badges",
	Short: "Re-evaluate badge criteria and grant what is due",
	Long: `Re-evaluates every badge for one user, or for up to 1000 users when
--user is omitted, and grants the badges whose criteria are now met.
Grants made here do not publish badge awarded events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd.Context(), events.NopPublisher{})
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.badges.Reprocess(cmd.Context(), userID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
