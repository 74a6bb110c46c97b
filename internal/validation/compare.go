package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// DefaultRegressionThreshold is the largest tolerated drop of an aggregate
// quality metric, in absolute points (0.05 = five percentage points).
const DefaultRegressionThreshold = 0.05

// Comparison statuses.
const (
	StatusOK         = "OK"
	StatusRegression = "REGRESSION"
	StatusImproved   = "IMPROVED"
	StatusNew        = "NEW"
	StatusMissing    = "MISSING"
)

// MetricDelta compares one aggregate metric.
type MetricDelta struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current"`
	Baseline float64 `json:"baseline"`
	Delta    float64 `json:"delta"`
	Status   string  `json:"status"`
}

// QueryDelta records a query whose outcome changed or that exists in only
// one of the reports.
type QueryDelta struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Comparison is the result of comparing a report with a baseline.
type Comparison struct {
	Metrics     []MetricDelta `json:"metrics"`
	Queries     []QueryDelta  `json:"queries"`
	Regressions int           `json:"regressions"`
	Improved    int           `json:"improved"`
}

// Regressed reports whether any metric or query got worse.
func (c *Comparison) Regressed() bool {
	return c.Regressions > 0
}

// LoadReport reads a JSON report written by the bench command.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse baseline %s: %w", path, err)
	}
	return &r, nil
}

// Compare compares current with baseline. A metric regresses when it drops
// by more than threshold; a query regresses when it passed in the baseline
// and fails now.
func Compare(current, baseline *Report, threshold float64) *Comparison {
	c := &Comparison{}

	metrics := []struct {
		name     string
		cur, old float64
	}{
		{"pass_rate", current.PassRate(), baseline.PassRate()},
		{"hit_rate", current.HitRate, baseline.HitRate},
		{"mrr", current.MRR, baseline.MRR},
		{"mean_keyword_coverage", current.MeanCoverage, baseline.MeanCoverage},
	}
	for _, m := range metrics {
		d := MetricDelta{Name: m.name, Current: m.cur, Baseline: m.old, Delta: m.cur - m.old}
		switch {
		case d.Delta < -threshold:
			d.Status = StatusRegression
			c.Regressions++
		case d.Delta > threshold:
			d.Status = StatusImproved
			c.Improved++
		default:
			d.Status = StatusOK
		}
		c.Metrics = append(c.Metrics, d)
	}

	old := make(map[string]bool, len(baseline.Results))
	for _, tr := range baseline.Results {
		old[tr.ID] = tr.Passed
	}
	seen := make(map[string]bool, len(current.Results))
	for _, tr := range current.Results {
		seen[tr.ID] = true
		passed, ok := old[tr.ID]
		switch {
		case !ok:
			c.Queries = append(c.Queries, QueryDelta{ID: tr.ID, Status: StatusNew})
		case passed && !tr.Passed:
			c.Queries = append(c.Queries, QueryDelta{ID: tr.ID, Status: StatusRegression})
			c.Regressions++
		case !passed && tr.Passed:
			c.Queries = append(c.Queries, QueryDelta{ID: tr.ID, Status: StatusImproved})
			c.Improved++
		}
	}
	for id := range old {
		if !seen[id] {
			c.Queries = append(c.Queries, QueryDelta{ID: id, Status: StatusMissing})
		}
	}
	sort.Slice(c.Queries, func(i, j int) bool { return c.Queries[i].ID < c.Queries[j].ID })
	return c
}
