package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oakmere/prospector/internal/connectors"
	"github.com/oakmere/prospector/internal/models"
)

// fakeConnector records invocations and serves scripted responses.
type fakeConnector struct {
	source models.DataSource

	mu    sync.Mutex
	calls []map[string]interface{}

	respond func(action string, params map[string]interface{}) (interface{}, error)
}

func (f *fakeConnector) Source() models.DataSource { return f.source }

func (f *fakeConnector) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(action, params)
	}
	return map[string]interface{}{"count": 1, "items": []map[string]interface{}{{"company": "Lumida Analytics"}}}, nil
}

func testRegistry(t *testing.T, fakes ...*fakeConnector) *connectors.Registry {
	t.Helper()
	r := connectors.NewRegistry(connectors.Options{}, zaptest.NewLogger(t))
	for _, f := range fakes {
		r.Register(f)
	}
	return r
}

func TestExecuteAggregatesIndependentSteps(t *testing.T) {
	cb := &fakeConnector{source: models.SourceCrunchbase}
	wx := &fakeConnector{source: models.SourceWealthX}
	e := New(testRegistry(t, cb, wx), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceWealthX, Action: "search_profiles"},
	}}

	agg, err := e.Execute(context.Background(), plan, "uk funding")
	require.NoError(t, err)
	require.Len(t, agg.Results, 2)
	assert.Equal(t, 2, agg.TotalRecords)
	assert.Equal(t, "uk funding", agg.OriginalQuery)
	assert.ElementsMatch(t, []models.DataSource{models.SourceCrunchbase, models.SourceWealthX}, agg.SourcesQueried)
}

func TestExecuteOrdersDependentsAfterDependencies(t *testing.T) {
	var order []int
	var mu sync.Mutex
	record := func(id int) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}

	cb := &fakeConnector{source: models.SourceCrunchbase, respond: func(string, map[string]interface{}) (interface{}, error) {
		record(1)
		return map[string]interface{}{"count": 1, "items": []map[string]interface{}{{"company": "Lumida Analytics"}}}, nil
	}}
	ch := &fakeConnector{source: models.SourceCompaniesHouse, respond: func(string, map[string]interface{}) (interface{}, error) {
		record(2)
		return map[string]interface{}{"count": 1, "items": []map[string]interface{}{{"company_name": "LUMIDA ANALYTICS LTD"}}}, nil
	}}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceCompaniesHouse, Action: "search", DependsOn: []int{1}},
	}}

	_, err := e.Execute(context.Background(), plan, "q")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, order)
}

func TestExecuteSkipsDependentsOfFailedSteps(t *testing.T) {
	cb := &fakeConnector{source: models.SourceCrunchbase, respond: func(string, map[string]interface{}) (interface{}, error) {
		return nil, errors.New("upstream unavailable")
	}}
	ch := &fakeConnector{source: models.SourceCompaniesHouse}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceCompaniesHouse, Action: "search", DependsOn: []int{1}},
	}}

	agg, err := e.Execute(context.Background(), plan, "q")
	require.NoError(t, err)
	require.Len(t, agg.Results, 2)

	r1, _ := agg.ResultByStep(1)
	assert.False(t, r1.Success)
	assert.Contains(t, r1.Error, "upstream unavailable")

	r2, _ := agg.ResultByStep(2)
	assert.False(t, r2.Success)
	assert.Contains(t, r2.Error, "skipped: dependency step 1 failed")

	// The skipped step never reached its connector.
	assert.Empty(t, ch.calls)
}

func TestExecuteResolvesStepReferences(t *testing.T) {
	cb := &fakeConnector{source: models.SourceCrunchbase, respond: func(string, map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"count": 2,
			"items": []map[string]interface{}{
				{"company": "Lumida Analytics"},
				{"company": "Brightloom Energy"},
			},
		}, nil
	}}
	ch := &fakeConnector{source: models.SourceCompaniesHouse}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceCompaniesHouse, Action: "search",
			Params:    map[string]interface{}{"q": "$step_1.items[0].company"},
			DependsOn: []int{1}},
	}}

	_, err := e.Execute(context.Background(), plan, "q")
	require.NoError(t, err)
	require.Len(t, ch.calls, 1)
	assert.Equal(t, "Lumida Analytics", ch.calls[0]["q"])
}

func TestExecuteSurfacesBadReferenceAsStepFailure(t *testing.T) {
	cb := &fakeConnector{source: models.SourceCrunchbase, respond: func(string, map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"count": 0, "items": []map[string]interface{}{}}, nil
	}}
	ch := &fakeConnector{source: models.SourceCompaniesHouse}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceCompaniesHouse, Action: "search",
			Params:    map[string]interface{}{"q": "$step_1.items[0].company"},
			DependsOn: []int{1}},
	}}

	agg, err := e.Execute(context.Background(), plan, "q")
	require.NoError(t, err)
	r2, _ := agg.ResultByStep(2)
	assert.False(t, r2.Success)
	assert.Contains(t, r2.Error, "index out of range")
	assert.Empty(t, ch.calls)
}

func TestExecuteStepsRetriesOnlyNamedSteps(t *testing.T) {
	attempts := int32(0)
	wx := &fakeConnector{source: models.SourceWealthX, respond: func(string, map[string]interface{}) (interface{}, error) {
		atomic.AddInt32(&attempts, 1)
		return map[string]interface{}{"count": 1, "items": []map[string]interface{}{{"name": "Priya Raghavan"}}}, nil
	}}
	cb := &fakeConnector{source: models.SourceCrunchbase}
	e := New(testRegistry(t, cb, wx), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceWealthX, Action: "search_profiles"},
	}}

	prior := []models.SearchResult{
		{StepID: 1, Source: models.SourceCrunchbase, Success: true},
		{StepID: 2, Source: models.SourceWealthX, Success: false, Error: "timeout"},
	}
	retried, err := e.ExecuteSteps(context.Background(), plan, "q", []int{2}, prior)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, 2, retried[0].StepID)
	assert.True(t, retried[0].Success)
	assert.Empty(t, cb.calls)
	assert.Equal(t, int32(1), attempts)
}

func TestExecuteStepsResolvesReferencesFromPriorResults(t *testing.T) {
	cb := &fakeConnector{source: models.SourceCrunchbase}
	ch := &fakeConnector{source: models.SourceCompaniesHouse}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceCompaniesHouse, Action: "search",
			Params:    map[string]interface{}{"q": "$step_1.items[0].company"},
			DependsOn: []int{1}},
	}}

	// Step 1 succeeded on the first pass and is not being retried; the
	// retried step's reference must resolve against that result.
	prior := []models.SearchResult{
		{
			StepID:  1,
			Source:  models.SourceCrunchbase,
			Success: true,
			Data: map[string]interface{}{
				"count": 1,
				"items": []map[string]interface{}{{"company": "Mosaic Robotics"}},
			},
		},
		{StepID: 2, Source: models.SourceCompaniesHouse, Success: false, Error: "timeout"},
	}

	retried, err := e.ExecuteSteps(context.Background(), plan, "q", []int{2}, prior)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.True(t, retried[0].Success)
	assert.Empty(t, cb.calls)
	require.Len(t, ch.calls, 1)
	assert.Equal(t, "Mosaic Robotics", ch.calls[0]["q"])
}

func TestExecuteStepsSkipsWhenPriorDependencyFailed(t *testing.T) {
	cb := &fakeConnector{source: models.SourceCrunchbase}
	ch := &fakeConnector{source: models.SourceCompaniesHouse}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
		{ID: 2, Source: models.SourceCompaniesHouse, Action: "search", DependsOn: []int{1}},
	}}

	prior := []models.SearchResult{
		{StepID: 1, Source: models.SourceCrunchbase, Success: false, Error: "upstream unavailable"},
	}

	retried, err := e.ExecuteSteps(context.Background(), plan, "q", []int{2}, prior)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.False(t, retried[0].Success)
	assert.Contains(t, retried[0].Error, "skipped: dependency step 1 failed")
	assert.Empty(t, ch.calls)
}

func TestExecuteReferencingSiblingsShareOneWave(t *testing.T) {
	// Several same-wave siblings all dereference step 1 while running
	// concurrently; every reference must resolve against the completed
	// first wave.
	cb := &fakeConnector{source: models.SourceCrunchbase, respond: func(string, map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"count": 1,
			"items": []map[string]interface{}{{"company": "Lumida Analytics"}},
		}, nil
	}}
	ch := &fakeConnector{source: models.SourceCompaniesHouse}
	e := New(testRegistry(t, cb, ch), zaptest.NewLogger(t))

	steps := []models.PlanStep{{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"}}
	for id := 2; id <= 21; id++ {
		steps = append(steps, models.PlanStep{
			ID: id, Source: models.SourceCompaniesHouse, Action: "search",
			Params:    map[string]interface{}{"q": "$step_1.items[0].company"},
			DependsOn: []int{1},
		})
	}

	agg, err := e.Execute(context.Background(), &models.ExecutionPlan{Steps: steps}, "q")
	require.NoError(t, err)
	require.Len(t, agg.Results, 21)
	for _, r := range agg.Results {
		assert.True(t, r.Success, "step %d", r.StepID)
	}
	require.Len(t, ch.calls, 20)
	for _, call := range ch.calls {
		assert.Equal(t, "Lumida Analytics", call["q"])
	}
}

func TestExecuteStepsRejectsUnknownStep(t *testing.T) {
	e := New(testRegistry(t), zaptest.NewLogger(t))
	plan := &models.ExecutionPlan{Steps: []models.PlanStep{
		{ID: 1, Source: models.SourceCrunchbase, Action: "search_funding"},
	}}

	_, err := e.ExecuteSteps(context.Background(), plan, "q", []int{9}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in plan")
}

func TestTopoWavesDetectsCycle(t *testing.T) {
	_, err := topoWaves([]models.PlanStep{
		{ID: 1, DependsOn: []int{2}},
		{ID: 2, DependsOn: []int{1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestWalkPath(t *testing.T) {
	data := map[string]interface{}{
		"count": 2,
		"items": []map[string]interface{}{
			{"company": "Lumida Analytics", "officers": []interface{}{"Priya Raghavan"}},
			{"company": "Brightloom Energy"},
		},
	}

	v, err := walkPath(data, "items[1].company")
	require.NoError(t, err)
	assert.Equal(t, "Brightloom Energy", v)

	v, err = walkPath(data, "items[0].officers[0]")
	require.NoError(t, err)
	assert.Equal(t, "Priya Raghavan", v)

	_, err = walkPath(data, "items[0].missing")
	require.Error(t, err)
}
