package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/engine"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile    string
	logLevel      string
	logFormat     string
	vectorStore   string
	patternStore  string
	aiProvider    string
	autoThreshold float64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "learnerd",
		Short: "Conversation learning engine",
		Long: `learnerd stores conversation memories, learns recurring response patterns
from finished conversations, reviews them and applies approved patterns
to new messages.

Configuration is read from GOMIND_LEARNING_* environment variables, then
the optional --config file (JSON or YAML), then flags.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (JSON or YAML)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: json or console")
	flags.StringVar(&opts.vectorStore, "vector-store", "", "vector store: memory, chromem, sqlite, postgres")
	flags.StringVar(&opts.patternStore, "pattern-store", "", "pattern store: memory, redis")
	flags.StringVar(&opts.aiProvider, "ai-provider", "", "AI provider: hash, anthropic, bedrock, gemini, ollama")
	flags.Float64Var(&opts.autoThreshold, "auto-approve", 0, "auto-approval confidence threshold")

	root.AddCommand(
		newServeCmd(opts),
		newRememberCmd(opts),
		newSearchCmd(opts),
		newLearnCmd(opts),
		newRespondCmd(opts),
		newReportCmd(opts),
		&cobra.Command{
			Use:   "providers",
			Short: "List the registered AI providers and whether they are usable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return writeJSON(cmd.OutOrStdout(), ai.GetProviderInfo())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "learnerd %s (%s)\n", version, gitCommit)
			},
		},
	)
	return root
}

// config layers flags over the file and environment.
func (o *rootOptions) config(cmd *cobra.Command) (*core.Config, error) {
	var opts []core.Option
	if o.configFile != "" {
		opts = append(opts, core.WithConfigFile(o.configFile))
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		opts = append(opts, core.WithLogLevel(o.logLevel))
	}
	if flags.Changed("log-format") {
		opts = append(opts, core.WithLogFormat(o.logFormat))
	}
	if flags.Changed("vector-store") {
		opts = append(opts, core.WithVectorStore(o.vectorStore))
	}
	if flags.Changed("pattern-store") {
		opts = append(opts, core.WithPatternStore(o.patternStore))
	}
	if flags.Changed("ai-provider") {
		// keep the key loaded from env or file
		opts = append(opts, func(c *core.Config) error {
			return core.WithAIProvider(o.aiProvider, c.AI.APIKey)(c)
		})
	}
	if flags.Changed("auto-approve") {
		opts = append(opts, core.WithAutoApproveThreshold(o.autoThreshold))
	}
	return core.NewConfig(opts...)
}

// open builds the config, the logger and the engine. The returned cleanup
// closes the engine and flushes the logger.
func (o *rootOptions) open(cmd *cobra.Command, extra ...engine.Option) (*engine.Engine, core.Logger, func(), error) {
	cfg, err := o.config(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := core.NewProductionLogger(cfg.Logging, cfg.Name)
	if err != nil {
		return nil, nil, nil, err
	}

	e, err := engine.New(commandContext(cmd), cfg, logger, extra...)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := e.Close(); err != nil {
			logger.Warn("Engine close failed", map[string]interface{}{"error": err.Error()})
		}
		_ = logger.Sync()
	}
	return e, logger, cleanup, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
