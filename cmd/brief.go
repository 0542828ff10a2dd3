package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/article"
	"github.com/loomworks/loom/internal/brief"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/curate"
	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/memory"
	"github.com/loomworks/loom/internal/profile"
	"github.com/loomworks/loom/internal/reflection"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/triage"
	"github.com/loomworks/loom/internal/trust"
)

var (
	briefTopics       []string
	briefProfilePath  string
	briefInstruct     string
	briefUseMemory    bool
	briefOutputPath   string
	briefTriage       bool
	briefMinRelevance float64
	briefMaxArticles  int
)

var briefCmd = &cobra.Command{
	Use:   "brief [articles-file]",
	Short: "Synthesize articles into a verified intelligence brief",
	Long: `Synthesize a JSON or YAML article file into an intelligence brief.

Each topic runs as an independent synthesis job; jobs share one rate
limiter so concurrent topics stay within provider limits. Accepted briefs
are saved to the local database and, when --memory is set, summarized
into the vector store for future historical context.

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for synthesis and embeddings
  MILVUS_ADDRESS     - Milvus server address, only with --memory

Examples:
  loom brief articles.json
  loom brief articles.yaml --topic "energy policy" --topic "local elections"
  loom brief articles.json --profile profile.yaml --memory --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runBrief,
}

func init() {
	rootCmd.AddCommand(briefCmd)
	briefCmd.Flags().StringArrayVar(&briefTopics, "topic", nil, "Topic to synthesize (repeatable; default one untopiced brief)")
	briefCmd.Flags().StringVar(&briefProfilePath, "profile", "", "Path to the reader profile YAML")
	briefCmd.Flags().StringVar(&briefInstruct, "instructions", "", "Override the default synthesis instructions")
	briefCmd.Flags().BoolVar(&briefUseMemory, "memory", false, "Recall and store historical context in the vector store")
	briefCmd.Flags().StringVar(&briefOutputPath, "output", "", "Write accepted briefs as JSON to this file")
	briefCmd.Flags().BoolVar(&briefTriage, "triage", false, "Assess article relevance in batches before synthesis")
	briefCmd.Flags().Float64Var(&briefMinRelevance, "min-relevance", 0.3, "Drop articles assessed below this relevance (with --triage)")
	briefCmd.Flags().IntVar(&briefMaxArticles, "max-articles", 30, "Cap on articles entering synthesis (with --triage)")
}

func runBrief(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	articles, err := article.LoadFile(args[0])
	if err != nil {
		return err
	}

	var prof *profile.Profile
	if briefProfilePath != "" {
		prof, err = profile.Load(briefProfilePath)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Quality.JobTimeout)
	defer cancel()

	controller, dispatcher, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	if briefTriage {
		stage := triage.New(dispatcher, cfg.LLM.ReflectModel, logger.Named("triage"))
		assessments, err := stage.Assess(ctx, strings.Join(briefTopics, ", "), articles)
		if err != nil {
			return fmt.Errorf("triaging articles: %w", err)
		}
		selected := triage.Select(assessments, briefMinRelevance, briefMaxArticles)
		if len(selected) == 0 {
			return fmt.Errorf("no articles passed triage (%d assessed)", len(assessments))
		}
		articles = selected
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var mem *memory.Memory
	if briefUseMemory {
		mem, err = openMemory(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("opening historical memory: %w", err)
		}
	}

	instructions := briefInstruct
	if instructions == "" {
		instructions = defaultInstructions
	}

	topics := briefTopics
	if len(topics) == 0 {
		topics = []string{""}
	}
	jobs := make([]brief.Job, 0, len(topics))
	for _, topic := range topics {
		job := brief.Job{
			Topic:        topic,
			Instructions: instructions,
			Articles:     articles,
			Profile:      prof,
		}
		if mem != nil {
			recalled, err := mem.Recall(ctx, recallQuery(topic, articles), topic)
			if err != nil {
				logger.Warn("historical recall failed, continuing without memory",
					zap.String("topic", topic), zap.Error(err))
			} else {
				job.Memory = recalled
			}
		}
		jobs = append(jobs, job)
	}

	results, err := brief.RunTopics(ctx, controller, jobs, cfg.Quality.Concurrency, logger)
	if err != nil {
		return err
	}

	var accepted []*brief.Brief
	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			printFailure(res)
			continue
		}
		accepted = append(accepted, res.Brief)
		if err := db.Save(ctx, res.Brief); err != nil {
			logger.Warn("saving brief failed", zap.Error(err))
		}
		if mem != nil {
			if err := mem.Remember(ctx, res.Brief); err != nil {
				logger.Warn("storing brief in memory failed", zap.Error(err))
			}
		}
		printBrief(res.Brief)
	}

	if briefOutputPath != "" && len(accepted) > 0 {
		data, err := json.MarshalIndent(accepted, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding briefs: %w", err)
		}
		if err := os.WriteFile(briefOutputPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", briefOutputPath, err)
		}
	}

	if failures == len(results) {
		return fmt.Errorf("all %d synthesis jobs failed", failures)
	}
	return nil
}

const defaultInstructions = `You are a personal intelligence analyst. Synthesize the articles below into a brief for your reader: what happened, why it happened, and what it means for them. Be specific, neutral, and cite your sources.`

// buildPipeline wires the synthesis pipeline from configuration. The
// dispatcher comes back separately so the triage stage shares its rate
// limiter.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*brief.Controller, *llm.Dispatcher, error) {
	client, err := llm.NewOpenAIClient(llm.Config{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		APIKey:    cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, nil, err
	}

	limiter := llm.NewRateLimiter(cfg.LLM.MinInterval)
	dispatcher := llm.NewDispatcher(client, limiter, llm.DispatchConfig{
		BatchSize:           cfg.LLM.BatchSize,
		BatchDelay:          cfg.LLM.BatchDelay,
		RequestTimeout:      cfg.LLM.RequestTimeout,
		MaxTransportRetries: cfg.LLM.MaxTransport,
		BackoffBase:         llm.DefaultDispatchConfig().BackoffBase,
	}, logger.Named("dispatch"))

	enforcer := curate.NewBudgetEnforcer(curate.BudgetConfig{
		Ceiling:      cfg.Budget.ContextCeiling,
		Instructions: cfg.Budget.Instructions,
		Articles:     cfg.Budget.Articles,
		Memory:       cfg.Budget.Memory,
		Reference:    cfg.Budget.Reference,
	}, logger.Named("budget"))
	assembler := curate.NewAssembler(enforcer, logger.Named("curate"))

	reflectCfg := reflection.DefaultConfig()
	reflectCfg.DepthThreshold = cfg.Quality.DepthThreshold
	reflectCfg.DimensionFloor = cfg.Quality.DimensionFloor
	reflectCfg.Model = cfg.LLM.ReflectModel
	evaluator := reflection.NewEvaluator(client, reflectCfg, logger.Named("reflect"))

	verifier := trust.NewVerifier(client, trust.Thresholds{
		MaxContradictedRatio: cfg.Quality.MaxContradicted,
		MaxLoadedLanguage:    cfg.Quality.MaxLoadedLanguage,
	}, cfg.LLM.ReflectModel, logger.Named("trust"))

	controllerCfg := brief.DefaultConfig()
	controllerCfg.Model = cfg.LLM.Model
	controllerCfg.MaxRetries = cfg.Quality.MaxRetries
	controllerCfg.MaxTokens = cfg.LLM.MaxTokens
	controller := brief.NewController(assembler, dispatcher, evaluator, verifier, controllerCfg, logger.Named("brief"))
	return controller, dispatcher, nil
}

func openMemory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*memory.Memory, error) {
	embedder, err := memory.NewOpenAIEmbedder(cfg.Memory.EmbeddingModel, cfg.Memory.Dimension)
	if err != nil {
		return nil, err
	}
	milvusCfg := memory.DefaultMilvusConfig()
	milvusCfg.Address = cfg.Memory.MilvusAddress
	milvusCfg.CollectionName = cfg.Memory.Collection
	milvusCfg.Dimension = cfg.Memory.Dimension
	vs, err := memory.NewMilvusStore(ctx, milvusCfg)
	if err != nil {
		return nil, err
	}
	return memory.New(embedder, vs, 5, logger.Named("memory")), nil
}

// recallQuery builds the memory query from the topic, or from article
// titles when the run has no topic.
func recallQuery(topic string, articles []article.Article) string {
	if topic != "" {
		return topic
	}
	titles := make([]string, 0, 5)
	for i, a := range articles {
		if i == 5 {
			break
		}
		titles = append(titles, a.Title)
	}
	return strings.Join(titles, "; ")
}

func printBrief(b *brief.Brief) {
	header := lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
	body := lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)

	fmt.Println()
	title := "Brief"
	if b.Topic != "" {
		title = fmt.Sprintf("Brief: %s", b.Topic)
	}
	fmt.Println(header.Render(title))
	fmt.Println()
	fmt.Println(body.Render(b.BottomLine))

	if len(b.PriorityEvents) > 0 {
		fmt.Println()
		fmt.Println(header.Render("Priority Events"))
		for _, e := range b.PriorityEvents {
			fmt.Println(body.Render(fmt.Sprintf("[%s] %s", e.Severity, e.Title)))
			fmt.Println(muted.Render("  " + e.Summary))
		}
	}
	if len(b.Trends) > 0 {
		fmt.Println()
		fmt.Println(header.Render("Trends"))
		for _, t := range b.Trends {
			fmt.Println(body.Render(fmt.Sprintf("(%s) %s", t.Scope, t.Summary)))
		}
	}
	if len(b.Predictions) > 0 {
		fmt.Println()
		fmt.Println(header.Render("Predictions"))
		for _, p := range b.Predictions {
			fmt.Println(body.Render(fmt.Sprintf("%.0f%% - %s", p.Confidence*100, p.Scenario)))
		}
	}

	fmt.Println()
	fmt.Println(muted.Render(fmt.Sprintf("id %s | %d sources | %d attempts",
		b.ID, len(b.Metadata.CitationMap), len(b.Metadata.Attempts))))
}

func printFailure(res brief.TopicResult) {
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	label := "synthesis failed"
	if res.Job.Topic != "" {
		label = fmt.Sprintf("synthesis failed for %q", res.Job.Topic)
	}
	var f *brief.Failure
	if errors.As(res.Err, &f) {
		fmt.Fprintf(os.Stderr, "%s after %d attempts: %s\n", errStyle.Render(label), len(f.Attempts), f.Reason)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", errStyle.Render(label), res.Err)
}
