package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

func param(id int64, group, data string) *model.Parameter {
	return &model.Parameter{ID: id, ProjectID: 1, GroupName: group, Data: data}
}

func TestParameterCombinationsEmpty(t *testing.T) {
	combos := ParameterCombinations(nil)
	require.Len(t, combos, 1)
	assert.Empty(t, combos[0])
}

func TestParameterCombinationsSingleGroup(t *testing.T) {
	combos := ParameterCombinations([]*model.Parameter{
		param(1, "browser", "chrome"),
		param(2, "browser", "firefox"),
	})
	require.Len(t, combos, 2)
	assert.Equal(t, "chrome", combos[0][0].Data)
	assert.Equal(t, "firefox", combos[1][0].Data)
}

func TestParameterCombinationsCartesianProduct(t *testing.T) {
	combos := ParameterCombinations([]*model.Parameter{
		param(1, "browser", "chrome"),
		param(2, "browser", "firefox"),
		param(3, "os", "linux"),
		param(4, "os", "macos"),
		param(5, "os", "windows"),
	})
	require.Len(t, combos, 6)
	for _, combo := range combos {
		require.Len(t, combo, 2)
		assert.Equal(t, "browser", combo[0].GroupName)
		assert.Equal(t, "os", combo[1].GroupName)
	}
	// Every pair appears exactly once.
	seen := make(map[[2]int64]bool)
	for _, combo := range combos {
		key := [2]int64{combo[0].ID, combo[1].ID}
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestValidatePlanDates(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, validatePlanDates(start, start.Add(24*time.Hour)))
	assert.NoError(t, validatePlanDates(start, time.Time{}))

	// The ordering is strict; equal dates are rejected too.
	err := validatePlanDates(start, start)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeDateRange))

	err = validatePlanDates(start, start.Add(-time.Hour))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeDateRange))
}

func TestValidatePlanCases(t *testing.T) {
	live := &model.Case{ID: 1, ProjectID: 7}
	assert.NoError(t, validatePlanCases([]*model.Case{live}, 7))

	foreign := &model.Case{ID: 2, ProjectID: 8}
	err := validatePlanCases([]*model.Case{live, foreign}, 7)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeCrossProject))

	archived := &model.Case{ID: 3, ProjectID: 7, IsArchive: true}
	err = validatePlanCases([]*model.Case{live, archived}, 7)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestPlanTitleComposition(t *testing.T) {
	plan := &model.Plan{Name: "regression"}
	assert.Equal(t, "regression", plan.Title())

	plan.Parameters = []*model.Parameter{
		param(1, "browser", "chrome"),
		param(3, "os", "linux"),
	}
	assert.Equal(t, "regression [chrome, linux]", plan.Title())
}
