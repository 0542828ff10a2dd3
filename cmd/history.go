package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [brief-id]",
	Short: "List saved briefs, or print one as JSON",
	Long: `Without arguments, lists the most recent saved briefs. With a brief ID,
prints that brief's full JSON payload to stdout.

Examples:
  loom history
  loom history --limit 50
  loom history 6e1f8a02-6d9c-4f9d-b7a1-2f6de7c3a981`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum briefs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()

	if len(args) == 1 {
		b, err := db.Get(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}

	listings, err := db.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Println("no briefs saved yet")
		return nil
	}

	idStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))

	for _, l := range listings {
		line := fmt.Sprintf("%s  %s", idStyle.Render(l.ID), l.GeneratedAt.Format("2006-01-02 15:04"))
		if l.Topic != "" {
			line += "  " + l.Topic
		}
		if l.Degraded {
			line += "  " + warn.Render("degraded")
		}
		fmt.Println(line)
		fmt.Println(muted.Render("  " + firstLine(l.BottomLine)))
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
