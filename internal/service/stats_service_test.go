package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/model"
)

func TestOrderStatusesUntestedLast(t *testing.T) {
	counts := map[int64]int64{model.UntestedStatusID: 2, 1: 5, 3: 1}
	ids := orderStatuses(counts, nil)
	assert.Equal(t, []int64{1, 3, model.UntestedStatusID}, ids)
}

func TestOrderStatusesProjectOrder(t *testing.T) {
	counts := map[int64]int64{1: 5, 2: 3, 3: 1, 9: 4}
	order := map[int64]int{3: 0, 1: 1}
	ids := orderStatuses(counts, order)
	// Ordered statuses first, then the rest by id.
	assert.Equal(t, []int64{3, 1, 2, 9}, ids)
}

func statusCatalogFixture() map[int64]*model.ResultStatus {
	return map[int64]*model.ResultStatus{
		model.UntestedStatusID: model.UntestedStatus(),
		1:                      {ID: 1, Name: "Passed", Color: "#2e7d32"},
		2:                      {ID: 2, Name: "Failed", Color: "#c62828"},
		3:                      {ID: 3, Name: "Skipped", Color: "#f9a825"},
	}
}

func TestSeedCatalogCountsKeepsZeroStatuses(t *testing.T) {
	// A pie over tests that all passed still reports Failed, Skipped and
	// Untested slices at zero.
	counts := map[int64]int64{1: 5}
	seedCatalogCounts(counts, statusCatalogFixture())

	ids := orderStatuses(counts, map[int64]int{1: 0, 2: 1, 3: 2})
	assert.Equal(t, []int64{1, 2, 3, model.UntestedStatusID}, ids)
	assert.Equal(t, int64(5), counts[1])
	assert.Zero(t, counts[2])
	assert.Zero(t, counts[3])
	assert.Zero(t, counts[model.UntestedStatusID])
}

func TestHistogramBarsZeroFill(t *testing.T) {
	catalog := statusCatalogFixture()
	bars := histogramBars(map[int64]int64{2: 4}, []int64{1, 2, 3}, catalog)
	require.Len(t, bars, 3)

	assert.Equal(t, HistogramBar{StatusID: 1, Label: "Passed", Color: "#2e7d32", Count: 0}, bars[0])
	assert.Equal(t, HistogramBar{StatusID: 2, Label: "Failed", Color: "#c62828", Count: 4}, bars[1])
	assert.Equal(t, HistogramBar{StatusID: 3, Label: "Skipped", Color: "#f9a825", Count: 0}, bars[2])

	// Empty buckets line up with the same bars.
	empty := histogramBars(nil, []int64{1, 2, 3}, catalog)
	require.Len(t, empty, 3)
	for _, bar := range empty {
		assert.Zero(t, bar.Count)
	}
}

func TestPieScopeRootOnly(t *testing.T) {
	s := &StatsService{}
	ids, err := s.pieScope(context.Background(), 42, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)
}

func TestSortAttributeKeysNumeric(t *testing.T) {
	keys := []string{"10", "2", "1.5"}
	sortAttributeKeys(keys)
	assert.Equal(t, []string{"1.5", "2", "10"}, keys)
}

func TestSortAttributeKeysFallsBackToStrings(t *testing.T) {
	keys := []string{"10", "beta", "2"}
	sortAttributeKeys(keys)
	assert.Equal(t, []string{"10", "2", "beta"}, keys)
}

func TestAttributeBucket(t *testing.T) {
	assert.Equal(t, "smoke", attributeBucket("smoke"))
	assert.Equal(t, "42", attributeBucket(float64(42)))
	assert.Equal(t, "2.5", attributeBucket(2.5))
	assert.Equal(t, "true", attributeBucket(true))
	assert.Equal(t, "", attributeBucket([]string{"x"}))
}
