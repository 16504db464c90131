package agents

import (
	"sort"
	"strings"

	"github.com/oakmere/prospector/internal/models"
)

// companySuffixes are stripped before companies are compared across sources,
// so "Lumida Analytics Ltd" and "Lumida Analytics" dedup to one entity.
var companySuffixes = []string{" LTD", " LIMITED", " PLC", " INC", " CORP", " LLC", " SA", " LLP"}

// ExtractEntities pulls company and individual entities out of successful
// step results and deduplicates them across sources by normalized name.
func ExtractEntities(results []models.SearchResult) models.EntitySet {
	companies := make(map[string]*models.Company)
	individuals := make(map[string]*models.Individual)

	for _, r := range results {
		if !r.Success || r.Data == nil {
			continue
		}
		for _, item := range resultItems(r.Data) {
			switch classify(r.Source, item) {
			case companyEntity:
				name := companyName(item)
				if name == "" {
					continue
				}
				key := normalizeCompanyKey(name)
				if c, ok := companies[key]; ok {
					c.Sources = addSource(c.Sources, r.Source)
				} else {
					companies[key] = &models.Company{Name: name, Sources: []models.DataSource{r.Source}}
				}
			case individualEntity:
				name := fieldString(item, "name")
				if name == "" {
					continue
				}
				key := strings.ToUpper(strings.TrimSpace(name))
				if i, ok := individuals[key]; ok {
					i.Sources = addSource(i.Sources, r.Source)
					if i.Company == "" {
						i.Company = fieldString(item, "primary_company")
					}
				} else {
					individuals[key] = &models.Individual{
						Name:    name,
						Company: fieldString(item, "primary_company"),
						Sources: []models.DataSource{r.Source},
					}
				}
			}
		}
	}

	return models.EntitySet{
		Companies:   sortedCompanies(companies),
		Individuals: sortedIndividuals(individuals),
	}
}

type entityKind int

const (
	noEntity entityKind = iota
	companyEntity
	individualEntity
)

// classify decides what one result item represents. Wealth sources describe
// people; officer and director listings carry a role field; funding and
// registry sources describe companies. News hits and the firm's own client
// book contribute no prospect entities.
func classify(source models.DataSource, item map[string]interface{}) entityKind {
	switch source {
	case models.SourceWealthX, models.SourceWealthMonitor:
		return individualEntity
	case models.SourceCompaniesHouse, models.SourceOrbis:
		if _, ok := item["role"]; ok {
			return individualEntity
		}
		return companyEntity
	case models.SourceCrunchbase, models.SourcePitchBook, models.SourceDunBradstreet:
		return companyEntity
	default:
		return noEntity
	}
}

func companyName(item map[string]interface{}) string {
	for _, field := range []string{"company", "name", "company_name", "organization"} {
		if v := fieldString(item, field); v != "" {
			return v
		}
	}
	return ""
}

func normalizeCompanyKey(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	for _, suffix := range companySuffixes {
		key = strings.TrimSuffix(key, suffix)
	}
	return strings.TrimSpace(key)
}

func resultItems(data interface{}) []map[string]interface{} {
	m, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	switch items := m["items"].(type) {
	case []map[string]interface{}:
		return items
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(items))
		for _, it := range items {
			if im, ok := it.(map[string]interface{}); ok {
				out = append(out, im)
			}
		}
		return out
	default:
		return nil
	}
}

func fieldString(item map[string]interface{}, field string) string {
	v, _ := item[field].(string)
	return strings.TrimSpace(v)
}

func addSource(sources []models.DataSource, s models.DataSource) []models.DataSource {
	for _, existing := range sources {
		if existing == s {
			return sources
		}
	}
	return append(sources, s)
}

func sortedCompanies(byKey map[string]*models.Company) []models.Company {
	out := make([]models.Company, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedIndividuals(byKey map[string]*models.Individual) []models.Individual {
	out := make([]models.Individual, 0, len(byKey))
	for _, i := range byKey {
		out = append(out, *i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
