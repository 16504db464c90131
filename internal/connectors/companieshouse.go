package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// CompaniesHouse serves UK company filings, officers and persons with
// significant control.
type CompaniesHouse struct {
	data dataset
}

func NewCompaniesHouse() (Connector, error) {
	data, err := loadDataset("companies_house")
	if err != nil {
		return nil, err
	}
	return &CompaniesHouse{data: data}, nil
}

func (c *CompaniesHouse) Source() models.DataSource { return models.SourceCompaniesHouse }

func (c *CompaniesHouse) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "search":
		items := filterItems(c.data.table("companies"),
			contains("name", strParam(params, "q")),
			eq("status", strParam(params, "status")),
		)
		return listResponse(items), nil
	case "get_company":
		number := strParam(params, "company_number")
		if co, ok := findByField(c.data.table("companies"), "company_number", number); ok {
			return co, nil
		}
		return nil, fmt.Errorf("company %q not found", number)
	case "get_officers":
		items := filterItems(c.data.table("officers"),
			eq("company_number", strParam(params, "company_number")),
		)
		return listResponse(items), nil
	case "get_pscs":
		items := filterItems(c.data.table("pscs"),
			eq("company_number", strParam(params, "company_number")),
		)
		return listResponse(items), nil
	default:
		return nil, fmt.Errorf("%w: companies_house.%s", ErrUnknownAction, action)
	}
}
