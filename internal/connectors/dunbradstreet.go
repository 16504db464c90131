package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// DunBradstreet serves firmographics and credit risk signals.
type DunBradstreet struct {
	data dataset
}

func NewDunBradstreet() (Connector, error) {
	data, err := loadDataset("dun_bradstreet")
	if err != nil {
		return nil, err
	}
	return &DunBradstreet{data: data}, nil
}

func (d *DunBradstreet) Source() models.DataSource { return models.SourceDunBradstreet }

func (d *DunBradstreet) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "match_company":
		name := strParam(params, "name")
		if co, ok := findByField(d.data.table("companies"), "name", name); ok {
			return co, nil
		}
		// Fall back to substring matching, the way the live match API
		// returns candidates.
		items := filterItems(d.data.table("companies"), contains("name", name))
		if len(items) == 0 {
			return nil, fmt.Errorf("no match for company %q", name)
		}
		return listResponse(items), nil
	case "get_company_data":
		duns := strParam(params, "duns")
		if co, ok := findByField(d.data.table("companies"), "duns", duns); ok {
			return co, nil
		}
		return nil, fmt.Errorf("DUNS %q not found", duns)
	default:
		return nil, fmt.Errorf("%w: dun_bradstreet.%s", ErrUnknownAction, action)
	}
}
