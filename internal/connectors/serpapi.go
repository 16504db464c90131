package connectors

import (
	"context"
	"fmt"

	"github.com/oakmere/prospector/internal/models"
)

// SerpAPI serves news and web search results.
type SerpAPI struct {
	data dataset
}

func NewSerpAPI() (Connector, error) {
	data, err := loadDataset("serpapi")
	if err != nil {
		return nil, err
	}
	return &SerpAPI{data: data}, nil
}

func (s *SerpAPI) Source() models.DataSource { return models.SourceSerpAPI }

func (s *SerpAPI) Call(_ context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "news_search":
		items := filterItems(s.data.table("news"),
			contains("title", strParam(params, "q")),
		)
		return listResponse(items), nil
	case "web_search":
		items := filterItems(s.data.table("web"),
			contains("title", strParam(params, "q")),
		)
		return listResponse(items), nil
	default:
		return nil, fmt.Errorf("%w: serpapi.%s", ErrUnknownAction, action)
	}
}
