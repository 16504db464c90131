package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// PitchBook serves PE/VC deals and private company profiles.
type PitchBook struct {
	data dataset
}

func NewPitchBook() (Connector, error) {
	data, err := loadDataset("pitchbook")
	if err != nil {
		return nil, err
	}
	return &PitchBook{data: data}, nil
}

func (p *PitchBook) Source() models.DataSource { return models.SourcePitchBook }

func (p *PitchBook) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "search_deals":
		items := filterItems(p.data.table("deals"),
			eq("deal_type", strParam(params, "deal_type")),
			contains("location", strParam(params, "location")),
			gte("deal_date", strParam(params, "deal_date_gte")),
		)
		return listResponse(items), nil
	case "get_company":
		id := strParam(params, "company_id")
		if co, ok := findByField(p.data.table("companies"), "company_id", id); ok {
			return co, nil
		}
		return nil, fmt.Errorf("company %q not found", id)
	default:
		return nil, fmt.Errorf("%w: pitchbook.%s", ErrUnknownAction, action)
	}
}
