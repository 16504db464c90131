// Package approval implements the plan approval gate: the decision point
// between planning and execution. Gates review a plan summary and answer
// with approve, reject, or revision feedback.
package approval

import (
	"context"

	"github.com/oakmere/prospector/internal/models"
)

// Gate reviews a plan presented for approval. revision is 1 for the first
// presentation and increments with each revised plan.
type Gate interface {
	Review(ctx context.Context, summary models.PlanSummary, revision int) (models.Feedback, error)
}
