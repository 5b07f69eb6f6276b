package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	Short:   "Download the server state snapshot (admin only)",
	Args:    cobra.MaximumNArgs(1),
	PreRunE: requireToken,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := client().Export()
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if len(args) == 0 {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(args[0], data, 0o600); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	Short:   "Replace the server state with a snapshot (admin only)",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireToken,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		stats, err := client().Import(data)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported: %d users, %d guilds, %d messages\n", stats.Users, stats.Guilds, stats.Messages)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := client()
		health, err := c.Health()
		if err != nil {
			return fmt.Errorf("health: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "status\t%s\n", health.Status)
		fmt.Fprintf(w, "version\t%s\n", health.Version)
		for name, check := range health.Checks {
			fmt.Fprintf(w, "check %s\t%v\n", name, check)
		}
		if c.Token != "" {
			stats, err := c.Stats()
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			fmt.Fprintf(w, "users\t%d (%d online)\n", stats.Users, stats.OnlineUsers)
			fmt.Fprintf(w, "guilds\t%d\n", stats.Guilds)
			fmt.Fprintf(w, "rooms\t%d\n", stats.Rooms)
			fmt.Fprintf(w, "messages\t%d\n", stats.Messages)
			fmt.Fprintf(w, "connections\t%d\n", stats.Connections)
			fmt.Fprintf(w, "started\t%s\n", stats.Started)
		}
		return w.Flush()
	},
}

var messagesCmd = &cobra.Command{
	Use:     "messages <room>",
	Short:   "Print one page of a room's history",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireToken,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		p, err := client().GetMessages(args[0], page, limit)
		if err != nil {
			return fmt.Errorf("messages: %w", err)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, m := range p.Messages {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Timestamp, m.Username, m.Message)
		}
		fmt.Fprintf(w, "page %d, %d of %d messages\n", p.Page, len(p.Messages), p.Total)
		return w.Flush()
	},
}

func init() {
	messagesCmd.Flags().Int("page", 1, "page number, 1 is the newest")
	messagesCmd.Flags().Int("limit", 50, "messages per page")

	rootCmd.AddCommand(exportCmd, importCmd, statusCmd, messagesCmd)
}
