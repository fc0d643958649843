package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entrhq/relance/pkg/agent"
	"github.com/entrhq/relance/pkg/agent/batch"
	"github.com/entrhq/relance/pkg/agent/executor"
	"github.com/entrhq/relance/pkg/agent/ledger"
	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/config"
	"github.com/entrhq/relance/pkg/llm"
	"github.com/entrhq/relance/pkg/llm/tokenizer"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/metrics"
	"github.com/entrhq/relance/pkg/tools/notes"
	"github.com/entrhq/relance/pkg/types"
)

// engine is the fully wired orchestration stack behind the CLI.
type engine struct {
	cfg        *config.Config
	registry   *tools.Registry
	notes      *notes.Service
	ledger     *ledger.Ledger
	metrics    *metrics.Metrics
	controller *agent.Controller
}

// newRegistry registers the notes tools, hiding those matching the
// configured disabled patterns.
func newRegistry(cfg *config.Config, svc *notes.Service, logger *logging.Logger) (*tools.Registry, error) {
	registry, err := tools.NewRegistry(
		tools.WithDisabledPatterns(cfg.Tools.Disabled...),
		tools.WithRegistryLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	if err := notes.Register(registry, svc); err != nil {
		return nil, fmt.Errorf("register notes tools: %w", err)
	}
	return registry, nil
}

// newEngine wires ledger, registry, executor, scheduler and controller from
// cfg. reg receives the Prometheus collectors.
func newEngine(cfg *config.Config, client llm.Client, reg prometheus.Registerer, onEvent func(*types.AgentEvent)) (*engine, error) {
	e := &engine{
		cfg:     cfg,
		notes:   notes.NewService(),
		metrics: metrics.New(reg),
	}

	loggerFor, err := componentLoggers(cfg.Logging)
	if err != nil {
		return nil, err
	}

	e.registry, err = newRegistry(cfg, e.notes, loggerFor("tools"))
	if err != nil {
		return nil, err
	}

	o := cfg.Orchestration
	e.ledger = ledger.New(
		ledger.WithTTL(o.SignatureTTL),
		ledger.WithLogger(loggerFor("ledger")),
	)
	exec := executor.New(e.ledger, e.registry,
		executor.WithTimeout(o.ToolTimeout),
		executor.WithMetrics(e.metrics),
		executor.WithLogger(loggerFor("executor")),
	)
	sched := batch.New(exec,
		batch.WithMaxBatchSize(o.MaxBatchSize),
		batch.WithPause(o.InterBatchPause),
		batch.WithMetrics(e.metrics),
		batch.WithLogger(loggerFor("batch")),
	)

	opts := []agent.Option{
		agent.WithRelanceBudget(o.RelanceBudget),
		agent.WithMaxHistory(o.MaxHistoryMessages),
		agent.WithAntiLoopRounds(o.AntiLoopRounds),
		agent.WithMetrics(e.metrics),
		agent.WithLogger(loggerFor("agent")),
		agent.WithEventHandler(onEvent),
	}
	if cfg.LLM.SystemPrompt != "" {
		opts = append(opts, agent.WithSystemPrompt(cfg.LLM.SystemPrompt))
	}
	if tok, tokErr := tokenizer.ForModel(client.Model()); tokErr == nil {
		opts = append(opts, agent.WithTokenizer(tok))
	} else {
		loggerFor("agent").Warnf("Token estimates disabled: %v", tokErr)
	}

	e.controller = agent.New(client, e.registry, sched, opts...)
	return e, nil
}

// componentLoggers applies the configured level and returns a logger
// factory. With an empty dir loggers use the session file under
// ~/.relance/logs (or RELANCE_LOG_DIR).
func componentLoggers(cfg config.LoggingConfig) (func(string) *logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)

	return func(component string) *logging.Logger {
		if cfg.Dir == "" {
			// falls back to stderr on error
			logger, _ := logging.NewLogger(component)
			return logger
		}
		logger, _ := logging.NewFileLogger(component, cfg.Dir)
		return logger
	}, nil
}
