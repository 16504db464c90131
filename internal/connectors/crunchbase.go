package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// Crunchbase serves funding round and organization lookups.
type Crunchbase struct {
	data dataset
}

func NewCrunchbase() (Connector, error) {
	data, err := loadDataset("crunchbase")
	if err != nil {
		return nil, err
	}
	return &Crunchbase{data: data}, nil
}

func (c *Crunchbase) Source() models.DataSource { return models.SourceCrunchbase }

func (c *Crunchbase) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "search_funding":
		minAmount, hasMin := floatParam(params, "min_amount_usd")
		items := filterItems(c.data.table("funding_rounds"),
			eq("investment_type", strParam(params, "investment_type")),
			contains("location", strParam(params, "location")),
			gte("announced_on", strParam(params, "announced_on_gte")),
			minFloat("money_raised_usd", minAmount, hasMin),
		)
		return listResponse(items), nil
	case "get_organization":
		name := strParam(params, "name")
		if org, ok := findByField(c.data.table("organizations"), "name", name); ok {
			return org, nil
		}
		return nil, fmt.Errorf("organization %q not found", name)
	default:
		return nil, fmt.Errorf("%w: crunchbase.%s", ErrUnknownAction, action)
	}
}
