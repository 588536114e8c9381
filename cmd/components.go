package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/ado"
	"github.com/xkilldash9x/infra-healer/internal/autofix"
	"github.com/xkilldash9x/infra-healer/internal/config"
	"github.com/xkilldash9x/infra-healer/internal/healer"
	"github.com/xkilldash9x/infra-healer/internal/llmclient"
	"github.com/xkilldash9x/infra-healer/internal/remediation"
	"github.com/xkilldash9x/infra-healer/internal/scm"
	"github.com/xkilldash9x/infra-healer/internal/store"
	"github.com/xkilldash9x/infra-healer/internal/triage"
)

func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", p, err)
	}
	return expanded, nil
}

// components are the long-lived collaborators built from configuration.
type components struct {
	LLM        schemas.LLMClient
	ADO        *ado.Client
	SCM        *scm.Client
	DBPool     *pgxpool.Pool
	Store      *store.Store
	Classifier *triage.Classifier
	Generator  *autofix.Generator
	Selector   *remediation.Selector
	Healer     *healer.Healer
}

// componentMode selects how much of the stack is built.
type componentMode int

const (
	// modeLocal builds only what classification needs. Remote collaborators
	// are skipped so nothing is written anywhere.
	modeLocal componentMode = iota
	// modeService builds every configured collaborator.
	modeService
	// modeDetectorsOnly is modeLocal without a text-completion client.
	modeDetectorsOnly
)

// Shutdown releases every component that holds resources.
func (c *components) Shutdown(logger *zap.Logger) {
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Failed to close text-completion client.", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
}

// loadClassifier builds the classifier over the configured rules file or the
// built-in rules.
func loadClassifier(logger *zap.Logger, cfg config.HealerConfig, llm schemas.LLMClient) (*triage.Classifier, error) {
	opts := triage.Options{
		MaxLogChars:  cfg.MaxLogChars,
		TailLogChars: cfg.TailLogChars,
		Temperature:  cfg.Temperature,
	}
	if cfg.RulesFile == "" {
		return triage.NewClassifier(logger, llm, opts), nil
	}
	data, err := os.ReadFile(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	detectors, domains, err := triage.LoadRules(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file %s: %w", cfg.RulesFile, err)
	}
	logger.Info("Loaded detector rules.", zap.String("path", cfg.RulesFile), zap.Int("detectors", detectors.Len()))
	return triage.NewClassifierWithRules(logger, llm, opts, detectors, domains), nil
}

func thresholdsFrom(cfg config.HealerConfig) remediation.Thresholds {
	return remediation.Thresholds{
		AutofixConfidence: cfg.AutofixConfidenceThreshold,
		WorkItemFloor:     cfg.WorkItemFloor,
		PreferPRComment:   cfg.PreferPRComment,
	}
}

// openStore connects to the audit database and ensures the schema exists.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, *store.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		return pool, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := st.Migrate(migrateCtx); err != nil {
		return pool, nil, err
	}
	return pool, st, nil
}

// initializeComponents wires the collaborators for the given mode. On error
// the partially built components are returned so the caller can shut them
// down.
func initializeComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger, mode componentMode) (*components, error) {
	c := &components{}

	var err error
	if mode != modeDetectorsOnly {
		llm, llmErr := llmclient.NewClient(ctx, cfg.LLM(), logger)
		switch {
		case llmErr == nil:
			c.LLM = llm
		case mode == modeLocal:
			logger.Warn("Text-completion client unavailable, classifying with detectors only.", zap.Error(llmErr))
		default:
			return c, fmt.Errorf("failed to initialize text-completion client: %w", llmErr)
		}
	}

	c.Classifier, err = loadClassifier(logger, cfg.Healer(), c.LLM)
	if err != nil {
		return c, err
	}

	targets := remediation.Targets{}
	var files schemas.FileFetcher
	var repos schemas.RepoResolver

	if mode == modeService {
		c.ADO, err = ado.NewClient(cfg.ADO(), logger)
		if err != nil {
			return c, err
		}
		targets.WorkItems = c.ADO
		targets.Comments = c.ADO

		if cfg.GitHub().Token != "" {
			c.SCM, err = scm.NewClient(cfg.GitHub(), nil, logger)
			if err != nil {
				return c, err
			}
			targets.PullRequests = c.SCM
			targets.Repos = c.SCM
			files, repos = c.SCM, c.SCM
		} else {
			logger.Warn("GitHub token not configured; autofix pull requests are disabled.")
		}

		if cfg.Database().URL != "" {
			c.DBPool, c.Store, err = openStore(ctx, cfg.Database(), logger)
			if err != nil {
				return c, err
			}
		}
	}

	resolver := autofix.NewTargetResolver(cfg.Healer().PipelineTargetMap(), cfg.Healer().DefaultTargetDir)
	c.Generator = autofix.NewGenerator(logger, files, repos, resolver)
	c.Selector = remediation.NewSelector(logger, thresholdsFrom(cfg.Healer()), targets)

	healerOpts := []healer.Option{healer.WithFixGenerator(c.Generator)}
	if c.Store != nil {
		healerOpts = append(healerOpts, healer.WithRecorder(c.Store))
	}
	var gatherer healer.EvidenceGatherer
	if c.ADO != nil {
		gatherer = healer.NewGatherer(logger, c.ADO, c.ADO)
	}
	c.Healer = healer.New(logger, gatherer, c.Classifier, c.Selector, healerOpts...)
	return c, nil
}
