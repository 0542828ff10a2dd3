package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/article"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/curate"
	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/trust"
)

var verifyArticlesPath string

var verifyCmd = &cobra.Command{
	Use:   "verify <brief-id>",
	Short: "Re-audit a saved brief against an article file",
	Long: `Re-run the trust audit on a saved brief. Use this to check a brief
against a newer or corrected set of source articles than the one it was
synthesized from.

Examples:
  loom verify 6e1f8a02-6d9c-4f9d-b7a1-2f6de7c3a981 --articles articles.json`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyArticlesPath, "articles", "", "Path to the source articles (JSON or YAML)")
	verifyCmd.MarkFlagRequired("articles")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := db.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	articles, err := article.LoadFile(verifyArticlesPath)
	if err != nil {
		return err
	}

	draft, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding brief: %w", err)
	}
	sources := curate.FormatArticles(articles)

	client, err := llm.NewOpenAIClient(llm.Config{
		Model:     cfg.LLM.ReflectModel,
		MaxTokens: cfg.LLM.MaxTokens,
		APIKey:    cfg.LLM.APIKey,
	})
	if err != nil {
		return err
	}
	verifier := trust.NewVerifier(client, trust.Thresholds{
		MaxContradictedRatio: cfg.Quality.MaxContradicted,
		MaxLoadedLanguage:    cfg.Quality.MaxLoadedLanguage,
	}, cfg.LLM.ReflectModel, logger.Named("trust"))

	analysis, report, err := verifier.Verify(cmd.Context(), string(draft), sources)
	if err != nil {
		return err
	}

	printAudit(analysis, report)
	if !report.Passed {
		return fmt.Errorf("%w: brief %s", trust.ErrVerificationFailed, b.ID)
	}
	return nil
}

func printAudit(analysis trust.Analysis, report trust.Report) {
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Bold(true)
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))

	fmt.Printf("%d claims, %d contradicted, %d loaded-language findings, %d tone issues\n",
		analysis.TotalClaims(), analysis.ContradictedClaims(),
		len(analysis.LoadedLanguage), len(analysis.ToneIssues))

	for _, c := range analysis.Claims {
		if c.Verdict == trust.VerdictContradicted {
			fmt.Println(bad.Render("contradicted: ") + c.Text)
		}
	}
	for _, f := range analysis.LoadedLanguage {
		fmt.Println(muted.Render(fmt.Sprintf("loaded [%s]: %s", f.Severity, f.Phrase)))
	}

	if report.Passed {
		fmt.Println(ok.Render("PASSED"))
		return
	}
	fmt.Println(bad.Render("FAILED"))
	for _, v := range report.Violations {
		fmt.Println("  " + v)
	}
}
