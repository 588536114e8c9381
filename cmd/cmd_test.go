package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/autofix"
	"github.com/xkilldash9x/infra-healer/internal/config"
	"github.com/xkilldash9x/infra-healer/internal/mocks"
	"github.com/xkilldash9x/infra-healer/internal/remediation"
	"github.com/xkilldash9x/infra-healer/internal/store"
	"github.com/xkilldash9x/infra-healer/internal/triage"
	"github.com/xkilldash9x/infra-healer/internal/watch"
)

const undeclaredLog = `Terraform v1.6.0
Working directory: /home/vsts/work/1/s/infrastructure/app
Error: Reference to undeclared input variable
An input variable with the name "azure_region" has not been declared.`

const completion = "CATEGORY: Configuration Error\nCONFIDENCE: 0.7\nEXPLANATION: azure_region is referenced but never declared.\nCAN_AUTOFIX: true"

type stubClassifier struct {
	result schemas.ClassificationResult
	calls  chan string
}

func (s *stubClassifier) Classify(_ context.Context, _ schemas.FailureReport, evidence schemas.EvidenceBundle) schemas.ClassificationResult {
	if s.calls != nil {
		s.calls <- evidence.BuildLogs
	}
	return s.result
}

type stubDecider struct{ decision remediation.Decision }

func (s stubDecider) Decide(schemas.FailureReport, schemas.ClassificationResult) remediation.Decision {
	return s.decision
}

type stubLister struct {
	runs []store.RunRecord
	err  error
}

func (s stubLister) RecentRuns(context.Context, int) ([]store.RunRecord, error) {
	return s.runs, s.err
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "healer version "+Version+"\n", out.String())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "analyze", "watch", "runs", "version"})
}

func TestInitializeConfig(t *testing.T) {
	t.Run("defaults without a config file", func(t *testing.T) {
		cfg, err := initializeConfig(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, 0.65, cfg.Healer().AutofixConfidenceThreshold)
	})

	t.Run("config file and environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "healer.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
healer:
  autofix_confidence_threshold: 0.8
  pipeline_targets:
    "4": infrastructure/app
server:
  addr: ":9090"
`), 0o644))
		t.Setenv("HEALER_GITHUB_BASE_BRANCH", "develop")

		cfg, err := initializeConfig(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, 0.8, cfg.Healer().AutofixConfidenceThreshold)
		assert.Equal(t, ":9090", cfg.Server().Addr)
		assert.Equal(t, map[int]string{4: "infrastructure/app"}, cfg.Healer().PipelineTargetMap())
		assert.Equal(t, "develop", cfg.GitHub().BaseBranch)
	})

	t.Run("explicit missing file is an error", func(t *testing.T) {
		_, err := initializeConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("healer:\n  autofix_confidence_threshold: 1.5\n"), 0o644))
		_, err := initializeConfig(viper.New(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestRunAnalyze(t *testing.T) {
	logger := zaptest.NewLogger(t)
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(completion, nil)

	classifier := triage.NewClassifier(logger, llm, triage.DefaultOptions())
	generator := autofix.NewGenerator(logger, nil, nil, nil)
	selector := remediation.NewSelector(logger, remediation.DefaultThresholds(), remediation.Targets{})

	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, logger, classifier, generator, selector,
		schemas.FailureReport{PipelineID: 4, BuildID: 99, ProjectName: "infra"}, undeclaredLog, true)
	require.NoError(t, err)

	var got analysis
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, schemas.CategoryMissingVariable, got.Classification.Category)
	assert.True(t, got.Classification.CanAutofix)
	assert.Equal(t, autofix.VariableBlock("azure_region"), got.Classification.Fix["infrastructure/app/variables.tf"])
	assert.Equal(t, remediation.DecisionFixPR, got.Decision)
	assert.NotEmpty(t, got.Summary)
	assert.Equal(t, 99, got.Report.BuildID)
	llm.AssertExpectations(t)
}

func TestRunAnalyze_WithoutExplain(t *testing.T) {
	classifier := &stubClassifier{result: schemas.ClassificationResult{Category: schemas.CategoryUnknown}}

	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, zaptest.NewLogger(t), classifier, nil,
		stubDecider{decision: remediation.DecisionSkip}, schemas.FailureReport{}, "all quiet", false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"planned_action": "skip"`)
	assert.NotContains(t, out.String(), `"summary"`)
}

func TestRunAnalyze_EmptyLog(t *testing.T) {
	err := runAnalyze(context.Background(), &bytes.Buffer{}, zap.NewNop(), &stubClassifier{}, nil, stubDecider{}, schemas.FailureReport{}, "", false)
	assert.EqualError(t, err, "build log is empty")
}

func TestReadLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.log")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))

	got, err := readLog(strings.NewReader("ignored"), path)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readLog(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readLog(nil, filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}

func TestRunWatch(t *testing.T) {
	classifier := &stubClassifier{
		result: schemas.ClassificationResult{Category: schemas.CategoryPipelineYAMLError, Confidence: 0.6},
		calls:  make(chan string, 1),
	}
	segments := make(chan watch.Segment, 1)
	segments <- watch.Segment{ID: "seg-1", DetectedAt: time.Now(), Lines: []string{"##[error]bad yaml", "line 2"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWatch(ctx, &out, zaptest.NewLogger(t), segments, make(chan struct{}), classifier, nil,
			stubDecider{decision: remediation.DecisionWorkItem}, reportFlags{pipelineID: 7, project: "infra"}, false)
	}()

	select {
	case logs := <-classifier.calls:
		assert.Equal(t, "##[error]bad yaml\nline 2", logs)
	case <-time.After(5 * time.Second):
		t.Fatal("segment was not classified")
	}
	cancel()
	require.NoError(t, <-errCh)

	var got analysis
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, remediation.DecisionWorkItem, got.Decision)
	assert.Equal(t, 7, got.Report.PipelineID)
	assert.Equal(t, "infra", got.Report.ProjectName)
}

func TestRunWatch_StopsWhenWatcherStops(t *testing.T) {
	done := make(chan struct{})
	close(done)
	err := runWatch(context.Background(), &bytes.Buffer{}, zap.NewNop(), make(chan watch.Segment), done,
		&stubClassifier{}, nil, stubDecider{}, reportFlags{}, false)
	assert.NoError(t, err)
}

func TestRunRuns(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := stubLister{runs: []store.RunRecord{{
		RunID: "r1", BuildID: 99, ProjectName: "infra", Category: schemas.CategoryMissingVariable,
		Confidence: 0.95, Action: schemas.ActionAutoFixPRCreated, Details: "Created PR #11", CreatedAt: created,
	}}}

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runRuns(context.Background(), &out, lister, 10, false))
		assert.Contains(t, out.String(), "CATEGORY")
		assert.Contains(t, out.String(), "2025-03-01 12:00:00")
		assert.Contains(t, out.String(), "MISSING_VARIABLE")
		assert.Contains(t, out.String(), "0.95")
		assert.Contains(t, out.String(), "Created PR #11")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runRuns(context.Background(), &out, lister, 10, true))
		var got []store.RunRecord
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "r1", got[0].RunID)
	})

	t.Run("error", func(t *testing.T) {
		err := runRuns(context.Background(), &bytes.Buffer{}, stubLister{err: errors.New("db down")}, 10, false)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestRunServe(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("initialization failure", func(t *testing.T) {
		initFn := func(context.Context, config.Interface, *zap.Logger, componentMode) (*components, error) {
			return &components{}, errors.New("no ado")
		}
		err := runServe(context.Background(), config.NewDefaultConfig(), logger, initFn)
		assert.ErrorContains(t, err, "no ado")
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.ServerCfg.Addr = "127.0.0.1:0"
		var gotMode componentMode = -1
		initFn := func(_ context.Context, _ config.Interface, _ *zap.Logger, mode componentMode) (*components, error) {
			gotMode = mode
			return &components{}, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, runServe(ctx, cfg, logger, initFn))
		assert.Equal(t, modeService, gotMode)
	})
}

func TestInitializeComponents(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("detectors only", func(t *testing.T) {
		comps, err := initializeComponents(context.Background(), config.NewDefaultConfig(), logger, modeDetectorsOnly)
		require.NoError(t, err)
		assert.Nil(t, comps.LLM)
		assert.NotNil(t, comps.Classifier)
		assert.NotNil(t, comps.Selector)
		assert.NotNil(t, comps.Healer)
		assert.Nil(t, comps.ADO)
	})

	t.Run("local mode tolerates a missing completion backend", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLMCfg.APIKey = ""
		comps, err := initializeComponents(context.Background(), cfg, logger, modeLocal)
		require.NoError(t, err)
		assert.Nil(t, comps.LLM)
	})

	t.Run("service mode requires a completion backend", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLMCfg.APIKey = ""
		_, err := initializeComponents(context.Background(), cfg, logger, modeService)
		assert.ErrorContains(t, err, "text-completion")
	})

	t.Run("service mode requires azure devops", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLMCfg.APIKey = "key"
		comps, err := initializeComponents(context.Background(), cfg, logger, modeService)
		require.Error(t, err)
		assert.True(t, schemas.IsKind(err, schemas.KindConfiguration))
		comps.Shutdown(logger)
	})
}

func TestLoadClassifier(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig().Healer()

	c, err := loadClassifier(logger, cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)

	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = loadClassifier(logger, cfg, nil)
	assert.ErrorContains(t, err, "rules file")
}

func TestThresholdsFrom(t *testing.T) {
	cfg := config.NewDefaultConfig().Healer()
	cfg.AutofixConfidenceThreshold = 0.7
	cfg.WorkItemFloor = 0.4
	cfg.PreferPRComment = false

	assert.Equal(t, remediation.Thresholds{AutofixConfidence: 0.7, WorkItemFloor: 0.4, PreferPRComment: false}, thresholdsFrom(cfg))
}
