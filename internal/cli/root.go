// Package cli implements guardrailctl, the offline companion to the
// guardrails server.
package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/engine/detectors"
	"github.com/Saiprana/ai-guardrails-system/internal/memstore"
	"github.com/Saiprana/ai-guardrails-system/internal/metrics"
	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
	"github.com/Saiprana/ai-guardrails-system/internal/rules"
	"github.com/Saiprana/ai-guardrails-system/internal/storage"
	"github.com/Saiprana/ai-guardrails-system/internal/tools"
)

// NewRootCmd builds the guardrailctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "guardrailctl",
		Short: "guardrailctl - evaluate guardrail rules offline",
		Long: `guardrailctl runs agent queries through the guardrail pipeline against a
YAML fixture, replays the demo scenarios, seeds a Postgres database from a
fixture and hashes admin keys for the server config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("fixture", "", "Path to a fixture YAML file (default: embedded demo fixture)")
	root.PersistentFlags().Bool("verbose", false, "Log pipeline decisions to stderr")

	root.AddCommand(
		newEvaluateCmd(),
		newScenariosCmd(),
		newHashKeyCmd(),
		newSeedCmd(),
	)
	return root
}

// Execute runs the command tree.
func Execute() error {
	decimal.MarshalJSONWithoutQuotes = true
	return NewRootCmd().Execute()
}

// loadFixture resolves the --fixture flag.
func loadFixture(cmd *cobra.Command) (*memstore.Fixture, error) {
	path, _ := cmd.Flags().GetString("fixture")
	if path == "" {
		return memstore.DemoFixture(), nil
	}
	return memstore.LoadFixtureFile(path)
}

func commandLogger(cmd *cobra.Command) *zap.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

// newLocalPipeline wires a pipeline over an in-memory copy of the fixture.
func newLocalPipeline(f *memstore.Fixture, logger *zap.Logger) (*pipeline.Pipeline, *memstore.Store) {
	data := memstore.New(f)
	ruleStore := rules.NewCachedStore(rules.CachedStoreConfig{
		Source:    data,
		Validator: rules.MustNewValidator(),
		Logger:    logger,
	})
	return pipeline.New(pipeline.Config{
		Directory:  data,
		Rules:      ruleStore,
		Leakage:    detectors.NewInternalDataDetector(data),
		Tools:      []pipeline.Tool{tools.NewDatabaseQuery(data), tools.WebSearch{}},
		Audit:      data,
		Events:     storage.NewLogWriter(logger),
		Metrics:    metrics.New(prometheus.NewRegistry()),
		FailClosed: true,
		Logger:     logger,
	}), data
}
