package validation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(results ...TestResult) *Report {
	return summarize(results)
}

func TestCompare_QueryFlips(t *testing.T) {
	// Given: a baseline where a and b pass, and a current run where b fails
	baseline := report(
		TestResult{ID: "a", Passed: true, MatchedAt: 0, KeywordCoverage: 1},
		TestResult{ID: "b", Passed: true, MatchedAt: 0, KeywordCoverage: 1},
		TestResult{ID: "gone", Passed: true, MatchedAt: 0, KeywordCoverage: 1},
	)
	current := report(
		TestResult{ID: "a", Passed: true, MatchedAt: 0, KeywordCoverage: 1},
		TestResult{ID: "b", Passed: false, MatchedAt: -1, KeywordCoverage: 0.2},
		TestResult{ID: "new", Passed: true, MatchedAt: 0, KeywordCoverage: 1},
	)

	// When: comparing
	c := Compare(current, baseline, DefaultRegressionThreshold)

	// Then: b regressed, new and gone are listed, and the metrics dropped
	assert.True(t, c.Regressed())
	assert.Equal(t, []QueryDelta{
		{ID: "b", Status: StatusRegression},
		{ID: "gone", Status: StatusMissing},
		{ID: "new", Status: StatusNew},
	}, c.Queries)

	require.Len(t, c.Metrics, 4)
	assert.Equal(t, "pass_rate", c.Metrics[0].Name)
	assert.Equal(t, StatusRegression, c.Metrics[0].Status)
	assert.InDelta(t, 2.0/3.0-1, c.Metrics[0].Delta, 1e-9)
}

func TestCompare_Unchanged(t *testing.T) {
	r := report(TestResult{ID: "a", Passed: true, MatchedAt: 1, KeywordCoverage: 0.8})

	c := Compare(r, r, DefaultRegressionThreshold)

	assert.False(t, c.Regressed())
	assert.Empty(t, c.Queries)
	for _, m := range c.Metrics {
		assert.Equal(t, StatusOK, m.Status, m.Name)
	}
}

func TestCompare_Improvement(t *testing.T) {
	baseline := report(TestResult{ID: "a", Passed: false, MatchedAt: -1})
	current := report(TestResult{ID: "a", Passed: true, MatchedAt: 0, KeywordCoverage: 1})

	c := Compare(current, baseline, DefaultRegressionThreshold)

	assert.False(t, c.Regressed())
	assert.Equal(t, []QueryDelta{{ID: "a", Status: StatusImproved}}, c.Queries)
	assert.Positive(t, c.Improved)
}

func TestLoadReport_RoundTripsBenchJSON(t *testing.T) {
	r := report(TestResult{ID: "a", Category: "acl", Passed: true, MatchedAt: 0, KeywordCoverage: 1})
	data, err := json.Marshal(r)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadReport(path)

	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Passed)
	assert.Equal(t, "a", loaded.Results[0].ID)
}

func TestLoadReport_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))

	_, err := LoadReport(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	_, err = LoadReport(bad)
	assert.Error(t, err)
}
