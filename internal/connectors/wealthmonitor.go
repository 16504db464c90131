package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// WealthMonitor serves UK-specific wealth signals: property and
// shareholding events.
type WealthMonitor struct {
	data dataset
}

func NewWealthMonitor() (Connector, error) {
	data, err := loadDataset("wealth_monitor")
	if err != nil {
		return nil, err
	}
	return &WealthMonitor{data: data}, nil
}

func (w *WealthMonitor) Source() models.DataSource { return models.SourceWealthMonitor }

func (w *WealthMonitor) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "search":
		items := filterItems(w.data.table("events"),
			contains("name", strParam(params, "name")),
			contains("region", strParam(params, "region")),
			eq("event_type", strParam(params, "event_type")),
		)
		return listResponse(items), nil
	default:
		return nil, fmt.Errorf("%w: wealth_monitor.%s", ErrUnknownAction, action)
	}
}
