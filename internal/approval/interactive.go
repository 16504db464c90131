package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oakmere/prospector/internal/models"
)

// InteractiveGate presents plan summaries on out and reads decisions from
// in. Used by the CLI.
type InteractiveGate struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewInteractiveGate(in io.Reader, out io.Writer) *InteractiveGate {
	return &InteractiveGate{in: bufio.NewScanner(in), out: out}
}

func (g *InteractiveGate) Review(ctx context.Context, summary models.PlanSummary, revision int) (models.Feedback, error) {
	fmt.Fprintf(g.out, "\n--- Plan for review (revision %d) ---\n", revision)
	fmt.Fprintf(g.out, "Query: %s\n", summary.Query)
	fmt.Fprintf(g.out, "Reasoning: %s\n", summary.Reasoning)
	fmt.Fprintf(g.out, "Sources: %s\n", strings.Join(summary.DataSources, ", "))
	fmt.Fprintln(g.out, "Steps:")
	for _, action := range summary.KeyActions {
		fmt.Fprintf(g.out, "  %s\n", action)
	}
	fmt.Fprintf(g.out, "Confidence: %.2f\n", summary.Confidence)
	fmt.Fprint(g.out, "[a]pprove / [r]eject / anything else as revision feedback: ")

	line, err := g.readLine(ctx)
	if err != nil {
		return models.Feedback{}, err
	}

	fb := models.Feedback{Timestamp: time.Now()}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "a", "approve", "y", "yes":
		fb.Status = models.ApprovalApproved
	case "r", "reject", "n", "no":
		fb.Status = models.ApprovalRejected
	default:
		fb.Status = models.ApprovalRevise
		fb.Text = strings.TrimSpace(line)
	}
	return fb, nil
}

// readLine scans one line, honoring context cancellation while blocked on
// input.
func (g *InteractiveGate) readLine(ctx context.Context) (string, error) {
	type scanResult struct {
		line string
		err  error
	}
	ch := make(chan scanResult, 1)
	go func() {
		if !g.in.Scan() {
			err := g.in.Err()
			if err == nil {
				err = io.EOF
			}
			ch <- scanResult{err: err}
			return
		}
		ch <- scanResult{line: g.in.Text()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}
