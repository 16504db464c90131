package connectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oakmere/prospector/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestCrunchbaseSearchFundingFilters(t *testing.T) {
	r := newTestRegistry(t)

	data, err := r.Invoke(context.Background(), models.SourceCrunchbase, "search_funding", map[string]interface{}{
		"investment_type":  "series_b",
		"location":         "united-kingdom",
		"announced_on_gte": "2024-01-01",
	})
	require.NoError(t, err)

	resp := data.(map[string]interface{})
	items := resp["items"].([]map[string]interface{})
	require.Equal(t, 3, resp["count"])
	for _, it := range items {
		assert.Equal(t, "series_b", it["investment_type"])
		assert.Equal(t, "united-kingdom", it["location"])
		assert.GreaterOrEqual(t, it["announced_on"].(string), "2024-01-01")
	}
}

func TestCompaniesHouseOfficersByCompany(t *testing.T) {
	r := newTestRegistry(t)

	data, err := r.Invoke(context.Background(), models.SourceCompaniesHouse, "get_officers", map[string]interface{}{
		"company_number": "11482391",
	})
	require.NoError(t, err)

	resp := data.(map[string]interface{})
	assert.Equal(t, 2, resp["count"])
}

func TestUnknownActionAndSource(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Invoke(context.Background(), models.SourceOrbis, "launch_rocket", nil)
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = r.Invoke(context.Background(), models.DataSource("myspace"), "search", nil)
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestCRMCheckClients(t *testing.T) {
	r := newTestRegistry(t)

	data, err := r.Invoke(context.Background(), models.SourceInternalCRM, "check_clients", map[string]interface{}{
		"names": []interface{}{"Veridian Health", "Lumida Analytics"},
	})
	require.NoError(t, err)

	resp := data.(map[string]interface{})
	require.Equal(t, 1, resp["count"])
	items := resp["items"].([]map[string]interface{})
	assert.Equal(t, "Veridian Health", items[0]["name"])
}

func TestRateLimitWaitRespectsContext(t *testing.T) {
	r := newTestRegistry(t)
	// One request per minute with an exhausted bucket forces a long wait.
	r.SetRateLimit(models.SourceSerpAPI, 1.0/60, 1)
	_, err := r.Invoke(context.Background(), models.SourceSerpAPI, "web_search", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Invoke(ctx, models.SourceSerpAPI, "web_search", nil)
	require.Error(t, err)
}

func TestCountRecords(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want int
	}{
		{"nil", nil, 0},
		{"slice", []interface{}{1, 2, 3}, 3},
		{"count field", map[string]interface{}{"count": 7}, 7},
		{"items field", map[string]interface{}{"items": []interface{}{1, 2}}, 2},
		{"bare record", map[string]interface{}{"name": "x"}, 1},
		{"scalar", "hello", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountRecords(tt.data))
		})
	}
}
