package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oakmere/prospector/internal/approval"
	"github.com/oakmere/prospector/internal/models"
)

// fakePlanner serves scripted plans; revisions bump a counter so tests can
// tell which revision was stored.
type fakePlanner struct {
	plan      *models.ExecutionPlan
	planErr   error
	revisions int
}

func (f *fakePlanner) CreatePlan(context.Context, string) (*models.ExecutionPlan, error) {
	return f.plan, f.planErr
}

func (f *fakePlanner) RevisePlan(_ context.Context, prior *models.ExecutionPlan, feedback, _ string) (*models.ExecutionPlan, error) {
	f.revisions++
	revised := *prior
	revised.Reasoning = fmt.Sprintf("revision %d: %s", f.revisions, feedback)
	return &revised, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) SummarizePlan(_ context.Context, plan *models.ExecutionPlan, query string) (models.PlanSummary, error) {
	return models.PlanSummary{Query: query, Confidence: plan.Confidence, Reasoning: plan.Reasoning}, nil
}

// fakeExecutor returns scripted results and records which steps were
// retried.
type fakeExecutor struct {
	results    []models.SearchResult
	execErr    error
	retried    [][]int
	priors     [][]models.SearchResult
	retryValue []models.SearchResult
}

func (f *fakeExecutor) Execute(_ context.Context, plan *models.ExecutionPlan, query string) (*models.AggregatedResults, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	agg := &models.AggregatedResults{
		OriginalQuery: query,
		Plan:          plan,
		Results:       append([]models.SearchResult(nil), f.results...),
	}
	agg.Merge(nil)
	return agg, nil
}

func (f *fakeExecutor) ExecuteSteps(_ context.Context, _ *models.ExecutionPlan, _ string, stepIDs []int, prior []models.SearchResult) ([]models.SearchResult, error) {
	f.retried = append(f.retried, stepIDs)
	f.priors = append(f.priors, prior)
	return f.retryValue, nil
}

// fakeSufficiency replays scripted verdicts in order.
type fakeSufficiency struct {
	verdicts []*models.SufficiencyResult
	calls    int
}

func (f *fakeSufficiency) Evaluate(context.Context, *models.AggregatedResults) (*models.SufficiencyResult, error) {
	v := f.verdicts[f.calls]
	if f.calls < len(f.verdicts)-1 {
		f.calls++
	}
	return v, nil
}

type fakeReporter struct {
	report string
	err    error
}

func (f *fakeReporter) Generate(context.Context, *models.AggregatedResults) (string, error) {
	return f.report, f.err
}

func fourStepPlan() *models.ExecutionPlan {
	return &models.ExecutionPlan{
		Reasoning: "initial",
		Steps: []models.PlanStep{
			{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
			{ID: 2, Source: models.SourcePitchBook, Action: "search_deals"},
			{ID: 3, Source: models.SourceCompaniesHouse, Action: "search", DependsOn: []int{1}},
			{ID: 4, Source: models.SourceInternalCRM, Action: "check_clients", DependsOn: []int{1}},
		},
		EstimatedSources: 4,
		Confidence:       0.8,
	}
}

func successResults() []models.SearchResult {
	return []models.SearchResult{
		{StepID: 1, Source: models.SourceCrunchbase, Success: true, RecordCount: 3},
		{StepID: 2, Source: models.SourcePitchBook, Success: true, RecordCount: 2},
		{StepID: 3, Source: models.SourceCompaniesHouse, Success: true, RecordCount: 1},
		{StepID: 4, Source: models.SourceInternalCRM, Success: true, RecordCount: 0},
	}
}

func sufficientVerdict() *models.SufficiencyResult {
	return &models.SufficiencyResult{Status: models.Sufficient, Reasoning: "plenty"}
}

func newEntry(query string) *models.QueryHistoryEntry {
	return &models.QueryHistoryEntry{Sequence: 1, Query: query, StartedAt: time.Now(), Status: models.StatusProcessing}
}

func controllerWith(t *testing.T, planner *fakePlanner, exec *fakeExecutor, suff *fakeSufficiency, gate approval.Gate) *Controller {
	t.Helper()
	return NewController(
		planner,
		fakeSummarizer{},
		exec,
		suff,
		&fakeReporter{report: "# Report"},
		gate,
		Policy{MaxRetryRounds: 2},
		zaptest.NewLogger(t),
	)
}

func TestRunHappyPath(t *testing.T) {
	planner := &fakePlanner{plan: fourStepPlan()}
	exec := &fakeExecutor{results: successResults()}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{sufficientVerdict()}}
	c := controllerWith(t, planner, exec, suff, approval.NewStaticGate())

	entry := newEntry("Find UK tech companies Series B")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, ReportReady, outcome.Type)
	assert.Equal(t, "# Report", outcome.Report)
	assert.Equal(t, models.StatusSufficient, entry.Status)
	assert.Len(t, entry.Results.Results, 4)
	assert.NotNil(t, entry.Sufficiency)
	assert.NotNil(t, entry.Entities)
	assert.Equal(t, "# Report", entry.Report)
	assert.False(t, entry.CompletedAt.IsZero())
}

func TestRunClarificationShortCircuitsBeforeApproval(t *testing.T) {
	planner := &fakePlanner{plan: &models.ExecutionPlan{
		Reasoning:     "too vague",
		Clarification: &models.ClarificationRequest{Question: "Which sector?"},
	}}
	exec := &fakeExecutor{}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{sufficientVerdict()}}

	gateCalled := false
	gate := gateFunc(func(context.Context, models.PlanSummary, int) (models.Feedback, error) {
		gateCalled = true
		return models.Feedback{Status: models.ApprovalApproved}, nil
	})
	c := controllerWith(t, planner, exec, suff, gate)

	entry := newEntry("find prospects")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, ClarificationRequested, outcome.Type)
	assert.Equal(t, "Which sector?", outcome.Clarification.Question)
	assert.False(t, gateCalled)
	assert.Nil(t, entry.Results)
	assert.Equal(t, models.StatusClarification, entry.Status)

	pending, ok := entry.PendingClarification()
	require.True(t, ok)
	assert.Equal(t, "Which sector?", pending.Question)
}

func TestRunApprovalRevisionsStoreFinalPlan(t *testing.T) {
	planner := &fakePlanner{plan: fourStepPlan()}
	exec := &fakeExecutor{results: successResults()}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{sufficientVerdict()}}
	gate := approval.NewStaticGate(
		models.Feedback{Status: models.ApprovalRevise, Text: "tighten the location"},
		models.Feedback{Status: models.ApprovalRevise, Text: "drop pitchbook"},
		models.Feedback{Status: models.ApprovalApproved},
	)
	c := controllerWith(t, planner, exec, suff, gate)

	entry := newEntry("uk series b")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, ReportReady, outcome.Type)
	// The stored plan is the second revision, not an earlier one.
	assert.Equal(t, "revision 2: drop pitchbook", entry.Plan.Reasoning)
	require.Len(t, entry.Revisions, 3)
	assert.Equal(t, models.ApprovalApproved, entry.Revisions[2].Feedback.Status)
}

func TestRunRejectionIsTerminal(t *testing.T) {
	planner := &fakePlanner{plan: fourStepPlan()}
	exec := &fakeExecutor{results: successResults()}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{sufficientVerdict()}}
	gate := approval.NewStaticGate(models.Feedback{Status: models.ApprovalRejected})
	c := controllerWith(t, planner, exec, suff, gate)

	entry := newEntry("uk series b")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, Rejected, outcome.Type)
	assert.ErrorIs(t, outcome.Err, models.ErrRejected)
	assert.Equal(t, models.StatusRejected, entry.Status)
	assert.Nil(t, entry.Results)
}

func TestRunRetriesOnlyNamedStepsAndPreservesOthers(t *testing.T) {
	results := successResults()
	results[2] = models.SearchResult{StepID: 3, Source: models.SourceCompaniesHouse, Success: false, Error: "transient"}

	planner := &fakePlanner{plan: fourStepPlan()}
	exec := &fakeExecutor{
		results: results,
		retryValue: []models.SearchResult{
			{StepID: 3, Source: models.SourceCompaniesHouse, Success: true, RecordCount: 4},
		},
	}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{
		{Status: models.RetryNeeded, Reasoning: "step 3 failed", RetrySteps: []int{3}},
		sufficientVerdict(),
	}}
	c := controllerWith(t, planner, exec, suff, approval.NewStaticGate())

	entry := newEntry("uk series b")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, ReportReady, outcome.Type)
	require.Equal(t, [][]int{{3}}, exec.retried)
	assert.Equal(t, 1, entry.RetryRounds)

	// The retry pass sees the first pass's results so step references to
	// non-retried steps keep resolving.
	require.Len(t, exec.priors, 1)
	assert.Equal(t, results, exec.priors[0])

	r3, _ := entry.Results.ResultByStep(3)
	assert.True(t, r3.Success)
	assert.Equal(t, 4, r3.RecordCount)

	// Untouched results keep their identity.
	r1, _ := entry.Results.ResultByStep(1)
	assert.Equal(t, 3, r1.RecordCount)
	r2, _ := entry.Results.ResultByStep(2)
	assert.True(t, r2.Success)
}

func TestRunRetryBoundExhausts(t *testing.T) {
	results := successResults()
	results[0] = models.SearchResult{StepID: 1, Source: models.SourceCrunchbase, Success: false, Error: "down"}

	planner := &fakePlanner{plan: fourStepPlan()}
	exec := &fakeExecutor{
		results: results,
		retryValue: []models.SearchResult{
			{StepID: 1, Source: models.SourceCrunchbase, Success: false, Error: "still down"},
		},
	}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{
		{Status: models.RetryNeeded, Reasoning: "step 1 failed", RetrySteps: []int{1}},
	}}
	c := controllerWith(t, planner, exec, suff, approval.NewStaticGate())

	entry := newEntry("uk series b")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, Failed, outcome.Type)
	assert.True(t, outcome.RetryExhausted())
	assert.Equal(t, models.StatusFailed, entry.Status)
	// MaxRetryRounds=2 means exactly two retry passes before giving up.
	assert.Len(t, exec.retried, 2)
	// Partial results stay inspectable.
	assert.NotNil(t, entry.Results)
}

func TestRunAdapterErrorsAreStageTagged(t *testing.T) {
	t.Run("plan stage", func(t *testing.T) {
		planner := &fakePlanner{planErr: errors.New("model unavailable")}
		c := controllerWith(t, planner, &fakeExecutor{}, &fakeSufficiency{verdicts: []*models.SufficiencyResult{sufficientVerdict()}}, approval.NewStaticGate())

		entry := newEntry("q")
		outcome := c.Run(context.Background(), entry.Query, entry)

		require.Equal(t, Failed, outcome.Type)
		assert.Equal(t, models.StagePlan, models.StageOf(outcome.Err))
		assert.Equal(t, models.StatusFailed, entry.Status)
	})

	t.Run("execute stage", func(t *testing.T) {
		planner := &fakePlanner{plan: fourStepPlan()}
		exec := &fakeExecutor{execErr: errors.New("registry wedged")}
		c := controllerWith(t, planner, exec, &fakeSufficiency{verdicts: []*models.SufficiencyResult{sufficientVerdict()}}, approval.NewStaticGate())

		entry := newEntry("q")
		outcome := c.Run(context.Background(), entry.Query, entry)

		require.Equal(t, Failed, outcome.Type)
		assert.Equal(t, models.StageExecute, models.StageOf(outcome.Err))
	})
}

func TestRunSufficiencyClarificationRecordsExchange(t *testing.T) {
	planner := &fakePlanner{plan: fourStepPlan()}
	exec := &fakeExecutor{results: []models.SearchResult{
		{StepID: 1, Source: models.SourceCrunchbase, Success: true, RecordCount: 0},
		{StepID: 2, Source: models.SourcePitchBook, Success: true, RecordCount: 0},
		{StepID: 3, Source: models.SourceCompaniesHouse, Success: true, RecordCount: 0},
		{StepID: 4, Source: models.SourceInternalCRM, Success: true, RecordCount: 0},
	}}
	suff := &fakeSufficiency{verdicts: []*models.SufficiencyResult{{
		Status:        models.ClarificationNeeded,
		Reasoning:     "nothing matched",
		Clarification: &models.ClarificationRequest{Question: "Broaden the search?"},
	}}}
	c := controllerWith(t, planner, exec, suff, approval.NewStaticGate())

	entry := newEntry("uk series b")
	outcome := c.Run(context.Background(), entry.Query, entry)

	require.Equal(t, ClarificationRequested, outcome.Type)
	require.Len(t, entry.Clarifications, 1)
	assert.Equal(t, "Broaden the search?", entry.Clarifications[0].Question)
	assert.False(t, entry.Clarifications[0].Answered())
	// Execution happened before the clarification, so results are recorded.
	assert.NotNil(t, entry.Results)
}

// gateFunc adapts a function to the approval.Gate interface.
type gateFunc func(context.Context, models.PlanSummary, int) (models.Feedback, error)

func (f gateFunc) Review(ctx context.Context, s models.PlanSummary, r int) (models.Feedback, error) {
	return f(ctx, s, r)
}
