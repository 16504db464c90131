package approval

import (
	"context"
	"sync"
	"time"

	"github.com/oakmere/prospector/internal/models"
)

// StaticGate replays a scripted sequence of decisions, one per Review call.
// After the script is exhausted it keeps answering with the final entry.
// Useful for non-interactive runs and tests.
type StaticGate struct {
	mu     sync.Mutex
	script []models.Feedback
	next   int
}

// NewStaticGate builds a gate from the scripted decisions. An empty script
// approves everything.
func NewStaticGate(script ...models.Feedback) *StaticGate {
	if len(script) == 0 {
		script = []models.Feedback{{Status: models.ApprovalApproved}}
	}
	return &StaticGate{script: script}
}

func (g *StaticGate) Review(_ context.Context, _ models.PlanSummary, _ int) (models.Feedback, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fb := g.script[g.next]
	if g.next < len(g.script)-1 {
		g.next++
	}
	fb.Timestamp = time.Now()
	return fb, nil
}
