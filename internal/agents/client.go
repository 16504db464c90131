package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/models"
	"github.com/oakmere/prospector/internal/tracing"
)

// HTTPClient talks to an external reasoning service over JSON HTTP. It
// implements Planner, Summarizer, Sufficiency and Reporter so a single
// sidecar can supply every reasoning stage.
type HTTPClient struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// HTTPConfig configures the reasoning service client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base: cfg.BaseURL,
		http: &http.Client{Timeout: timeout},
		log:  logger,
	}
}

type planRequest struct {
	Query    string                `json:"query"`
	Prior    *models.ExecutionPlan `json:"prior_plan,omitempty"`
	Feedback string                `json:"feedback,omitempty"`
}

type summaryRequest struct {
	Query string                `json:"query"`
	Plan  *models.ExecutionPlan `json:"plan"`
}

type sufficiencyRequest struct {
	Results *models.AggregatedResults `json:"results"`
}

type reportRequest struct {
	Results *models.AggregatedResults `json:"results"`
}

type reportResponse struct {
	Report string `json:"report"`
}

func (c *HTTPClient) CreatePlan(ctx context.Context, query string) (*models.ExecutionPlan, error) {
	var plan models.ExecutionPlan
	if err := c.postJSON(ctx, "/plan", planRequest{Query: query}, &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("planning service returned invalid plan: %w", err)
	}
	return &plan, nil
}

func (c *HTTPClient) RevisePlan(ctx context.Context, prior *models.ExecutionPlan, feedback, query string) (*models.ExecutionPlan, error) {
	var plan models.ExecutionPlan
	req := planRequest{Query: query, Prior: prior, Feedback: feedback}
	if err := c.postJSON(ctx, "/plan/revise", req, &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("planning service returned invalid revision: %w", err)
	}
	return &plan, nil
}

func (c *HTTPClient) SummarizePlan(ctx context.Context, plan *models.ExecutionPlan, query string) (models.PlanSummary, error) {
	var summary models.PlanSummary
	err := c.postJSON(ctx, "/summarize", summaryRequest{Query: query, Plan: plan}, &summary)
	return summary, err
}

func (c *HTTPClient) Evaluate(ctx context.Context, results *models.AggregatedResults) (*models.SufficiencyResult, error) {
	var verdict models.SufficiencyResult
	if err := c.postJSON(ctx, "/sufficiency", sufficiencyRequest{Results: results}, &verdict); err != nil {
		return nil, err
	}
	if err := verdict.Validate(); err != nil {
		return nil, fmt.Errorf("sufficiency service returned invalid verdict: %w", err)
	}
	return &verdict, nil
}

func (c *HTTPClient) Generate(ctx context.Context, results *models.AggregatedResults) (string, error) {
	var resp reportResponse
	if err := c.postJSON(ctx, "/report", reportRequest{Results: results}, &resp); err != nil {
		return "", err
	}
	return resp.Report, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("Reasoning service returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return fmt.Errorf("call %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	c.log.Debug("Reasoning service call completed",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
