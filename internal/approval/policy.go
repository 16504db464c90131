package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/models"
)

const decisionQuery = "data.prospector.approval.decision"

// PolicyConfig configures the OPA-backed gate.
type PolicyConfig struct {
	// Path is a .rego file or a directory of .rego files.
	Path string
	// FailClosed rejects plans when policies cannot be loaded or evaluated;
	// fail-open approves them.
	FailClosed bool
}

// PolicyGate evaluates plan summaries against compiled rego policies. The
// policy's decision document carries a status (approved, rejected,
// needs_revision) and optional feedback text.
type PolicyGate struct {
	cfg      PolicyConfig
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
}

// NewPolicyGate loads and compiles the policies under cfg.Path. A load
// failure is fatal in fail-closed mode; fail-open degrades to approving
// every plan with a warning.
func NewPolicyGate(cfg PolicyConfig, logger *zap.Logger) (*PolicyGate, error) {
	g := &PolicyGate{cfg: cfg, logger: logger}
	if err := g.LoadPolicies(); err != nil {
		if cfg.FailClosed {
			return nil, fmt.Errorf("failed to load approval policies in fail-closed mode: %w", err)
		}
		logger.Warn("Failed to load approval policies, gate will fail open", zap.Error(err))
	}
	return g, nil
}

// LoadPolicies (re)compiles the rego modules under the configured path.
// Called at construction and by config hot reload.
func (g *PolicyGate) LoadPolicies() error {
	modules := make(map[string]string)

	info, err := os.Stat(g.cfg.Path)
	if err != nil {
		return fmt.Errorf("stat policy path: %w", err)
	}

	if info.IsDir() {
		err = filepath.Walk(g.cfg.Path, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".rego") {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read policy file %s: %w", path, err)
			}
			rel, _ := filepath.Rel(g.cfg.Path, path)
			modules[strings.TrimSuffix(rel, ".rego")] = string(content)
			return nil
		})
		if err != nil {
			return fmt.Errorf("walk policy directory: %w", err)
		}
	} else {
		content, err := os.ReadFile(g.cfg.Path)
		if err != nil {
			return fmt.Errorf("read policy file: %w", err)
		}
		modules[strings.TrimSuffix(filepath.Base(g.cfg.Path), ".rego")] = string(content)
	}

	if len(modules) == 0 {
		return fmt.Errorf("no .rego files under %s", g.cfg.Path)
	}

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, content := range modules {
		opts = append(opts, rego.Module(name, content))
	}

	compiled, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("compile approval policies: %w", err)
	}
	g.compiled = &compiled

	g.logger.Info("Approval policies loaded",
		zap.Int("modules", len(modules)),
		zap.String("query", decisionQuery),
	)
	return nil
}

// Review evaluates the summary against the policy and maps the decision
// document onto Feedback.
func (g *PolicyGate) Review(ctx context.Context, summary models.PlanSummary, revision int) (models.Feedback, error) {
	if g.compiled == nil {
		return g.fallback("no policies loaded"), nil
	}

	// Nil slices become JSON null, which count() cannot evaluate; policies
	// must always see arrays.
	keyActions := summary.KeyActions
	if keyActions == nil {
		keyActions = []string{}
	}
	dataSources := summary.DataSources
	if dataSources == nil {
		dataSources = []string{}
	}

	input := map[string]interface{}{
		"query":             summary.Query,
		"data_sources":      dataSources,
		"key_actions":       keyActions,
		"estimated_sources": summary.EstimatedSources,
		"confidence":        summary.Confidence,
		"revision":          revision,
	}

	results, err := g.compiled.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		g.logger.Error("Approval policy evaluation failed", zap.Error(err))
		if g.cfg.FailClosed {
			return models.Feedback{}, fmt.Errorf("approval policy evaluation: %w", err)
		}
		return g.fallback("policy evaluation error"), nil
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return g.fallback("policy produced no decision"), nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return g.fallback("policy decision is not an object"), nil
	}

	fb := models.Feedback{Timestamp: time.Now()}
	status, _ := doc["status"].(string)
	switch status {
	case "approved":
		fb.Status = models.ApprovalApproved
	case "rejected":
		fb.Status = models.ApprovalRejected
	case "needs_revision":
		fb.Status = models.ApprovalRevise
	default:
		g.logger.Warn("Approval policy returned unknown status", zap.String("status", status))
		return g.fallback(fmt.Sprintf("unknown decision status %q", status)), nil
	}
	if text, ok := doc["feedback"].(string); ok {
		fb.Text = text
	}

	g.logger.Info("Approval policy decision",
		zap.String("status", string(fb.Status)),
		zap.Int("revision", revision),
	)
	return fb, nil
}

func (g *PolicyGate) fallback(reason string) models.Feedback {
	status := models.ApprovalApproved
	if g.cfg.FailClosed {
		status = models.ApprovalRejected
	}
	return models.Feedback{
		Status:    status,
		Text:      reason,
		Timestamp: time.Now(),
	}
}
