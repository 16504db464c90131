// Package executor runs execution plans against the connector registry:
// dependency ordering, concurrent dispatch of independent steps, parameter
// references between steps, and dependency-failure skipping.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/connectors"
	"github.com/oakmere/prospector/internal/metrics"
	"github.com/oakmere/prospector/internal/models"
	"github.com/oakmere/prospector/internal/tracing"
)

// Executor dispatches plan steps to the connector registry in dependency
// order, running independent steps concurrently.
type Executor struct {
	registry *connectors.Registry
	logger   *zap.Logger
}

func New(registry *connectors.Registry, logger *zap.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Execute runs the whole plan and aggregates the step results.
func (e *Executor) Execute(ctx context.Context, plan *models.ExecutionPlan, query string) (*models.AggregatedResults, error) {
	results, err := e.run(ctx, plan, nil, nil)
	if err != nil {
		return nil, err
	}

	agg := &models.AggregatedResults{
		OriginalQuery: query,
		Plan:          plan,
		Results:       results,
	}
	agg.Merge(nil) // recompute roll-up counters
	var total time.Duration
	for _, r := range results {
		total += r.Duration
	}
	agg.Duration = total
	return agg, nil
}

// ExecuteSteps re-runs only the named steps. prior carries the results of
// the plan's earlier pass so that dependency checks and step references to
// non-retried steps resolve against what already ran.
func (e *Executor) ExecuteSteps(ctx context.Context, plan *models.ExecutionPlan, query string, stepIDs []int, prior []models.SearchResult) ([]models.SearchResult, error) {
	want := make(map[int]bool, len(stepIDs))
	for _, id := range stepIDs {
		if _, ok := plan.StepByID(id); !ok {
			return nil, fmt.Errorf("retry step %d not in plan", id)
		}
		want[id] = true
	}
	return e.run(ctx, plan, want, prior)
}

// run executes the plan's steps in topological waves. When only is non-nil,
// steps outside the set are not dispatched; their results come from prior
// where available. byID is read-only while a wave's goroutines run: new
// results land in the wave buffer and fold into byID only after the join,
// which is safe because a step's dependencies always live in earlier waves.
func (e *Executor) run(ctx context.Context, plan *models.ExecutionPlan, only map[int]bool, prior []models.SearchResult) ([]models.SearchResult, error) {
	ctx, span := tracing.StartStageSpan(ctx, "execute")
	defer span.End()

	waves, err := topoWaves(plan.Steps)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]models.SearchResult, len(plan.Steps)+len(prior))
	for _, r := range prior {
		byID[r.StepID] = r
	}

	var results []models.SearchResult
	for _, wave := range waves {
		var (
			mu      sync.Mutex
			waveRes []models.SearchResult
			wg      sync.WaitGroup
		)
		for _, step := range wave {
			if only != nil && !only[step.ID] {
				continue
			}

			// A failed or skipped dependency poisons the step: record a
			// skip without touching the connector.
			if failedDep := firstFailedDep(step, byID, only); failedDep != 0 {
				res := skippedResult(step, failedDep)
				mu.Lock()
				waveRes = append(waveRes, res)
				mu.Unlock()
				metrics.StepsSkipped.Inc()
				e.logger.Warn("Step skipped: dependency failed",
					zap.Int("step_id", step.ID),
					zap.Int("failed_dependency", failedDep),
				)
				continue
			}

			wg.Add(1)
			go func(step models.PlanStep) {
				defer wg.Done()
				res := e.runStep(ctx, step, byID)
				mu.Lock()
				waveRes = append(waveRes, res)
				mu.Unlock()
			}(step)
		}
		// Join the wave, then publish its results for dependent waves.
		wg.Wait()
		for _, r := range waveRes {
			byID[r.StepID] = r
			results = append(results, r)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].StepID < results[j].StepID })
	return results, nil
}

func (e *Executor) runStep(ctx context.Context, step models.PlanStep, prior map[int]models.SearchResult) models.SearchResult {
	start := time.Now()

	params, err := resolveParams(step.Params, prior)
	if err != nil {
		e.logger.Warn("Step parameter resolution failed",
			zap.Int("step_id", step.ID),
			zap.Error(err),
		)
		return models.SearchResult{
			StepID:    step.ID,
			Source:    step.Source,
			Success:   false,
			Error:     err.Error(),
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}
	}

	data, err := e.registry.Invoke(ctx, step.Source, step.Action, params)
	if err != nil {
		e.logger.Warn("Step execution failed",
			zap.Int("step_id", step.ID),
			zap.String("source", string(step.Source)),
			zap.String("action", step.Action),
			zap.Error(err),
		)
		return models.SearchResult{
			StepID:    step.ID,
			Source:    step.Source,
			Success:   false,
			Error:     err.Error(),
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}
	}

	res := models.SearchResult{
		StepID:      step.ID,
		Source:      step.Source,
		Success:     true,
		Data:        data,
		RecordCount: connectors.CountRecords(data),
		Duration:    time.Since(start),
		Timestamp:   time.Now(),
	}
	e.logger.Debug("Step executed",
		zap.Int("step_id", step.ID),
		zap.String("source", string(step.Source)),
		zap.Int("records", res.RecordCount),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// firstFailedDep reports the first dependency whose recorded result failed,
// or 0 when all dependencies are satisfied. Dependencies outside a retry set
// that carry no recorded result count as satisfied: the caller vouched for
// them by excluding them.
func firstFailedDep(step models.PlanStep, byID map[int]models.SearchResult, only map[int]bool) int {
	for _, dep := range step.DependsOn {
		res, ok := byID[dep]
		if !ok {
			if only != nil && !only[dep] {
				continue
			}
			return dep
		}
		if !res.Success {
			return dep
		}
	}
	return 0
}

func skippedResult(step models.PlanStep, failedDep int) models.SearchResult {
	return models.SearchResult{
		StepID:    step.ID,
		Source:    step.Source,
		Success:   false,
		Error:     fmt.Sprintf("skipped: dependency step %d failed", failedDep),
		Timestamp: time.Now(),
	}
}

// topoWaves groups steps into dependency waves: every step in wave N depends
// only on steps in earlier waves. Kahn's algorithm; a leftover step means a
// dependency cycle.
func topoWaves(steps []models.PlanStep) ([][]models.PlanStep, error) {
	indegree := make(map[int]int, len(steps))
	dependents := make(map[int][]int)
	byID := make(map[int]models.PlanStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		indegree[s.ID] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var waves [][]models.PlanStep
	placed := 0
	frontier := make([]int, 0, len(steps))
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			frontier = append(frontier, s.ID)
		}
	}

	for len(frontier) > 0 {
		sort.Ints(frontier)
		wave := make([]models.PlanStep, 0, len(frontier))
		var next []int
		for _, id := range frontier {
			wave = append(wave, byID[id])
			placed++
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		waves = append(waves, wave)
		frontier = next
	}

	if placed != len(steps) {
		return nil, fmt.Errorf("plan has a dependency cycle")
	}
	return waves, nil
}

// resolveParams substitutes "$step_N.path" string values with data from
// earlier step results. A reference to a failed or missing step is an error;
// the caller records it as a step failure.
func resolveParams(params map[string]interface{}, prior map[int]models.SearchResult) (map[string]interface{}, error) {
	if len(params) == 0 {
		return params, nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "$step_") {
			out[k] = v
			continue
		}
		resolved, err := resolveReference(s, prior)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveReference(ref string, prior map[int]models.SearchResult) (interface{}, error) {
	body := strings.TrimPrefix(ref, "$step_")
	idPart, path, _ := strings.Cut(body, ".")
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return nil, fmt.Errorf("malformed step reference %q", ref)
	}

	res, ok := prior[id]
	if !ok {
		return nil, fmt.Errorf("reference %q: step %d has no result", ref, id)
	}
	if !res.Success {
		return nil, fmt.Errorf("reference %q: step %d failed", ref, id)
	}
	if path == "" {
		return res.Data, nil
	}

	val, err := walkPath(res.Data, path)
	if err != nil {
		return nil, fmt.Errorf("reference %q: %w", ref, err)
	}
	return val, nil
}

// walkPath follows dot-separated fields with optional [N] index suffixes
// through maps and slices, e.g. "items[0].company".
func walkPath(data interface{}, path string) (interface{}, error) {
	cur := data
	for _, seg := range strings.Split(path, ".") {
		field := seg
		index := -1
		if open := strings.Index(seg, "["); open >= 0 && strings.HasSuffix(seg, "]") {
			field = seg[:open]
			n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
			if err != nil {
				return nil, fmt.Errorf("bad index in segment %q", seg)
			}
			index = n
		}

		if field != "" {
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("segment %q: not an object", field)
			}
			cur, ok = m[field]
			if !ok {
				return nil, fmt.Errorf("segment %q: no such field", field)
			}
		}

		if index >= 0 {
			switch list := cur.(type) {
			case []map[string]interface{}:
				if index >= len(list) {
					return nil, fmt.Errorf("segment %q: index out of range", seg)
				}
				cur = list[index]
			case []interface{}:
				if index >= len(list) {
					return nil, fmt.Errorf("segment %q: index out of range", seg)
				}
				cur = list[index]
			default:
				return nil, fmt.Errorf("segment %q: not a list", seg)
			}
		}
	}
	return cur, nil
}
