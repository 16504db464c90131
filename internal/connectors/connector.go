// Package connectors provides the data source connectors the executor
// dispatches plan steps to. All connectors here serve embedded mock datasets
// with simulated latency so the workflow can run without live API access.
package connectors

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oakmere/prospector/internal/metrics"
	"github.com/oakmere/prospector/internal/models"
)

var (
	ErrUnknownSource = fmt.Errorf("unknown data source")
	ErrUnknownAction = fmt.Errorf("unknown action for source")
)

// Connector is a single data source. Call executes one named action with
// resolved parameters and returns the raw response payload.
type Connector interface {
	Source() models.DataSource
	Call(ctx context.Context, action string, params map[string]interface{}) (interface{}, error)
}

// RateLimit is a per-source token bucket setting.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Options tunes the registry's latency simulation and per-source limits.
type Options struct {
	LatencyMin time.Duration
	LatencyMax time.Duration
	// RateLimits maps source name to a token bucket. Sources without an
	// entry are not limited.
	RateLimits map[string]RateLimit
}

// Registry routes (source, action) invocations to registered connectors,
// applying rate limits and recording call metrics.
type Registry struct {
	logger     *zap.Logger
	opts       Options
	mu         sync.RWMutex
	connectors map[models.DataSource]Connector
	limiters   map[models.DataSource]*rate.Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		logger:     logger,
		opts:       opts,
		connectors: make(map[models.DataSource]Connector),
		limiters:   make(map[models.DataSource]*rate.Limiter),
	}
}

// NewDefaultRegistry creates a registry with every mock connector installed.
func NewDefaultRegistry(opts Options, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(opts, logger)
	all := []func() (Connector, error){
		NewCrunchbase,
		NewPitchBook,
		NewCompaniesHouse,
		NewOrbis,
		NewWealthX,
		NewWealthMonitor,
		NewDunBradstreet,
		NewSerpAPI,
		NewInternalCRM,
	}
	for _, build := range all {
		c, err := build()
		if err != nil {
			return nil, err
		}
		r.Register(c)
	}
	return r, nil
}

// Register installs a connector, replacing any prior one for its source.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := c.Source()
	r.connectors[src] = c
	if rl, ok := r.opts.RateLimits[string(src)]; ok && rl.RPS > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiters[src] = rate.NewLimiter(rate.Limit(rl.RPS), burst)
	}
}

// SetRateLimit installs or updates the token bucket for one source. Used by
// config hot reload.
func (r *Registry) SetRateLimit(src models.DataSource, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rps <= 0 {
		delete(r.limiters, src)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	r.limiters[src] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Invoke executes one (source, action) call: waits on the source's rate
// limiter, simulates provider latency, and delegates to the connector.
func (r *Registry) Invoke(ctx context.Context, src models.DataSource, action string, params map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	c, ok := r.connectors[src]
	limiter := r.limiters[src]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, src)
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", src, err)
		}
	}

	if err := r.simulateLatency(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.Call(ctx, action, params)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ConnectorCalls.WithLabelValues(string(src), status).Inc()
	metrics.ConnectorDuration.WithLabelValues(string(src)).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		r.logger.Debug("Connector call failed",
			zap.String("source", string(src)),
			zap.String("action", action),
			zap.Error(err),
		)
		return nil, err
	}
	return data, nil
}

func (r *Registry) simulateLatency(ctx context.Context) error {
	min, max := r.opts.LatencyMin, r.opts.LatencyMax
	if max <= 0 {
		return nil
	}
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CountRecords estimates the number of records in a connector payload.
// Connectors return heterogeneous shapes; this checks the common ones.
func CountRecords(data interface{}) int {
	switch v := data.(type) {
	case nil:
		return 0
	case []interface{}:
		return len(v)
	case []map[string]interface{}:
		return len(v)
	case map[string]interface{}:
		if c, ok := v["count"].(int); ok {
			return c
		}
		for _, key := range []string{"entities", "items", "results"} {
			if items, ok := v[key].([]interface{}); ok {
				return len(items)
			}
			if items, ok := v[key].([]map[string]interface{}); ok {
				return len(items)
			}
		}
		return 1
	default:
		return 1
	}
}
