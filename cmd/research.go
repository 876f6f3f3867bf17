package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/config"
	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/evidence"
	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/metrics"
	"github.com/sells-group/topic-research/internal/pipeline"
	"github.com/sells-group/topic-research/internal/resilience"
	"github.com/sells-group/topic-research/internal/store"
	"github.com/sells-group/topic-research/internal/topic"
	anthropicpkg "github.com/sells-group/topic-research/pkg/anthropic"
	"github.com/sells-group/topic-research/pkg/firecrawl"
	"github.com/sells-group/topic-research/pkg/jina"
	"github.com/sells-group/topic-research/pkg/perplexity"
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Research a query and recommend a product",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// An interrupted run is still recorded, as failed.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		query := strings.Join(args, " ")

		opts := pipeline.RunOptions{}
		opts.TopicKey, _ = cmd.Flags().GetString("topic")
		opts.Model, _ = cmd.Flags().GetString("model")
		opts.FastMode, _ = cmd.Flags().GetBool("fast")
		if cmd.Flags().Changed("temperature") {
			temp, _ := cmd.Flags().GetFloat64("temperature")
			opts.Temperature = &temp
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		if metricsFile == "" {
			metricsFile = cfg.Metrics.TextfilePath
		}

		if opts.Model != "" {
			cfg.LLM.DefaultModel = opts.Model
		}
		if err := cfg.Validate("research"); err != nil {
			return err
		}

		catalog, err := topic.Load(cfg.Topics.CatalogPath)
		if err != nil {
			return eris.Wrap(err, "load topic catalog")
		}
		catalog = catalog.WithDefault(cfg.Topics.DefaultKey)

		var st store.Store
		if s, err := openStore(ctx); err != nil {
			zap.L().Warn("run history disabled", zap.Error(err))
		} else {
			st = s
			defer st.Close() //nolint:errcheck
		}

		calc := cost.NewCalculator(cfg.Pricing)
		tally := cost.NewTally()
		p := pipeline.New(cfg, buildEvidence(cfg, calc, tally), buildFactory(cfg, calc), catalog, st)

		res, err := p.Run(ctx, query, opts)
		if err != nil {
			return err
		}

		if metricsFile != "" {
			if err := metrics.WriteTextfile(metricsFile); err != nil {
				zap.L().Warn("failed to write metrics", zap.Error(err))
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprint(os.Stdout, res.State.RenderedText)
		writeCostSummary(os.Stderr, res, tally)
		return nil
	},
}

func init() {
	researchCmd.Flags().String("topic", "", "topic key from the catalog (skips classification)")
	researchCmd.Flags().String("model", "", "model for this run (claude-* or sonar*)")
	researchCmd.Flags().Float64("temperature", 0, "sampling temperature for this run")
	researchCmd.Flags().Bool("fast", false, "single search pass and no knowledge aggregation")
	researchCmd.Flags().Bool("json", false, "print the full result as JSON")
	researchCmd.Flags().String("metrics-file", "", "write prometheus metrics to this textfile after the run")
	rootCmd.AddCommand(researchCmd)
}

// buildEvidence wires the providers in fallback order: Firecrawl, then
// Jina, then a direct fetch for scrapes when enabled.
func buildEvidence(c *config.Config, calc *cost.Calculator, tally *cost.Tally) *evidence.Adapter {
	var providers []evidence.Provider
	if c.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		providers = append(providers, evidence.NewFirecrawlProvider(fc, calc, tally))
	}
	if c.Jina.Key != "" {
		jc := jina.NewClient(c.Jina.Key,
			jina.WithBaseURL(c.Jina.BaseURL),
			jina.WithSearchBaseURL(c.Jina.SearchBaseURL),
		)
		providers = append(providers, evidence.NewJinaProvider(jc, calc, tally))
	}
	if c.Search.DirectFetch {
		providers = append(providers, evidence.NewDirectProvider(nil))
	}

	s := c.Search
	return evidence.New(evidence.Options{
		SearchTimeout: s.SearchTimeout(),
		ScrapeTimeout: s.ScrapeTimeout(),
		Retry: resilience.RetryConfig{
			MaxAttempts:    s.Retries + 1,
			InitialBackoff: time.Duration(s.RetryBackoffMs) * time.Millisecond,
		},
		Breaker: func(name string) resilience.CircuitBreakerConfig {
			bc := resilience.DefaultCircuitBreakerConfig(name)
			if s.CircuitThreshold > 0 {
				bc.FailureThreshold = s.CircuitThreshold
			}
			if s.CircuitResetSecs > 0 {
				bc.ResetTimeout = time.Duration(s.CircuitResetSecs) * time.Second
			}
			return bc
		},
	}, providers...)
}

// buildFactory creates clients for every model vendor that has a key.
func buildFactory(c *config.Config, calc *cost.Calculator) *llm.Factory {
	f := &llm.Factory{Calc: calc}
	if c.Anthropic.Key != "" {
		opts := []anthropicpkg.Option{anthropicpkg.WithMaxRetries(c.Anthropic.MaxRetries)}
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		f.Anthropic = anthropicpkg.NewClient(c.Anthropic.Key, opts...)
	}
	if c.Perplexity.Key != "" {
		f.Perplexity = perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
	}
	return f
}

func writeCostSummary(w io.Writer, res *pipeline.Result, tally *cost.Tally) {
	u := res.State.Usage
	_, _ = fmt.Fprintf(w, "\nmodel %s: %d calls, %d in / %d out tokens, $%.4f\n",
		res.Model, u.Calls, u.InputTokens, u.OutputTokens, u.Cost)
	for _, p := range tally.Providers() {
		_, _ = fmt.Fprintf(w, "%s: $%.4f\n", p, tally.Of(p))
	}
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "run %s\n", res.RunID)
	}
}
