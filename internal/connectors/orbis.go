package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// Orbis serves corporate structures, directors and ownership chains.
type Orbis struct {
	data dataset
}

func NewOrbis() (Connector, error) {
	data, err := loadDataset("orbis")
	if err != nil {
		return nil, err
	}
	return &Orbis{data: data}, nil
}

func (o *Orbis) Source() models.DataSource { return models.SourceOrbis }

func (o *Orbis) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "search_companies":
		minRevenue, hasMin := floatParam(params, "min_revenue_usd")
		items := filterItems(o.data.table("companies"),
			contains("country", strParam(params, "country")),
			contains("industry", strParam(params, "industry")),
			minFloat("revenue_usd", minRevenue, hasMin),
		)
		return listResponse(items), nil
	case "get_directors":
		items := filterItems(o.data.table("directors"),
			eq("company_id", strParam(params, "company_id")),
		)
		return listResponse(items), nil
	case "get_ownership":
		companyID := strParam(params, "company_id")
		if own, ok := findByField(o.data.table("ownership"), "company_id", companyID); ok {
			return own, nil
		}
		return nil, fmt.Errorf("ownership for company %q not found", companyID)
	default:
		return nil, fmt.Errorf("%w: orbis.%s", ErrUnknownAction, action)
	}
}
