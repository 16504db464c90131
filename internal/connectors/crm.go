package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// InternalCRM serves the firm's own client book: existing-client checks and
// exclusion lists used to filter prospecting results.
type InternalCRM struct {
	data dataset
}

func NewInternalCRM() (Connector, error) {
	data, err := loadDataset("internal_crm")
	if err != nil {
		return nil, err
	}
	return &InternalCRM{data: data}, nil
}

func (c *InternalCRM) Source() models.DataSource { return models.SourceInternalCRM }

func (c *InternalCRM) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "check_clients":
		names := stringSliceParam(params, "names")
		clients := c.data.table("clients")
		matches := make([]map[string]interface{}, 0)
		for _, name := range names {
			if cl, ok := findByField(clients, "name", name); ok {
				matches = append(matches, cl)
			}
		}
		return listResponse(matches), nil
	case "get_exclusions":
		return listResponse(c.data.table("exclusions")), nil
	default:
		return nil, fmt.Errorf("%w: internal_crm.%s", ErrUnknownAction, action)
	}
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	if params == nil {
		return nil
	}
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if e != nil {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
