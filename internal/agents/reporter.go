package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oakmere/prospector/internal/models"
)

// MarkdownReporter renders aggregated results into a markdown report.
type MarkdownReporter struct{}

func NewMarkdownReporter() *MarkdownReporter {
	return &MarkdownReporter{}
}

func (r *MarkdownReporter) Generate(_ context.Context, results *models.AggregatedResults) (string, error) {
	var b strings.Builder

	b.WriteString("# Prospecting Report\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", results.OriginalQuery)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().UTC().Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Records found: %d\n", results.TotalRecords)
	fmt.Fprintf(&b, "- Sources queried: %s\n", joinSources(results.SourcesQueried))
	fmt.Fprintf(&b, "- Steps executed: %d\n", len(results.Results))
	fmt.Fprintf(&b, "- Duration: %s\n\n", results.Duration.Round(time.Millisecond))

	b.WriteString("## Findings\n\n")
	for _, res := range results.Results {
		fmt.Fprintf(&b, "### Step %d — %s\n\n", res.StepID, DisplayName(res.Source))
		if step, ok := results.Plan.StepByID(res.StepID); ok {
			fmt.Fprintf(&b, "_%s_\n\n", step.Reason)
		}
		if !res.Success {
			fmt.Fprintf(&b, "> Failed: %s\n\n", res.Error)
			continue
		}
		writeData(&b, res.Data)
	}

	return b.String(), nil
}

func joinSources(sources []models.DataSource) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = DisplayName(s)
	}
	return strings.Join(names, ", ")
}

// writeData renders the result payload. List payloads become bullet items,
// single records become a field table; anything else prints as-is.
func writeData(b *strings.Builder, data interface{}) {
	m, ok := data.(map[string]interface{})
	if !ok {
		fmt.Fprintf(b, "%v\n\n", data)
		return
	}
	if items, ok := m["items"].([]map[string]interface{}); ok {
		if len(items) == 0 {
			b.WriteString("No matching records.\n\n")
			return
		}
		for _, item := range items {
			b.WriteString("- ")
			b.WriteString(itemLine(item))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- **%s:** %v\n", k, m[k])
	}
	b.WriteString("\n")
}

// itemLine extracts the most identifying fields of a record for its bullet.
func itemLine(item map[string]interface{}) string {
	var parts []string
	for _, key := range []string{"company", "name", "company_name", "organization", "title"} {
		if v, ok := item[key].(string); ok && v != "" {
			parts = append(parts, "**"+v+"**")
			break
		}
	}
	for _, key := range []string{"round", "deal_type", "status", "role", "net_worth_usd", "amount_usd", "date", "announced_on"} {
		if v, ok := item[key]; ok {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%v", item)
	}
	return strings.Join(parts, " · ")
}
