package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// WealthX serves UHNW individual profiles.
type WealthX struct {
	data dataset
}

func NewWealthX() (Connector, error) {
	data, err := loadDataset("wealthx")
	if err != nil {
		return nil, err
	}
	return &WealthX{data: data}, nil
}

func (w *WealthX) Source() models.DataSource { return models.SourceWealthX }

func (w *WealthX) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "search_profiles":
		minWorth, hasMin := floatParam(params, "net_worth_min_usd")
		items := filterItems(w.data.table("profiles"),
			contains("location", strParam(params, "location")),
			contains("primary_company", strParam(params, "company")),
			minFloat("net_worth_usd", minWorth, hasMin),
		)
		return listResponse(items), nil
	case "get_profile":
		id := strParam(params, "profile_id")
		if p, ok := findByField(w.data.table("profiles"), "profile_id", id); ok {
			return p, nil
		}
		return nil, fmt.Errorf("profile %q not found", id)
	default:
		return nil, fmt.Errorf("%w: wealthx.%s", ErrUnknownAction, action)
	}
}
