package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

func TestPlanCopyScheduleDefaultsToSource(t *testing.T) {
	src := &model.Plan{
		StartedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
	}
	started, due := planCopySchedule(src, model.PlanCopyTarget{ID: 1})
	assert.Equal(t, src.StartedAt, started)
	assert.Equal(t, src.DueDate, due)
}

func TestPlanCopyScheduleOverrides(t *testing.T) {
	src := &model.Plan{
		StartedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
	}
	newStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	newDue := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	started, due := planCopySchedule(src, model.PlanCopyTarget{ID: 1, StartedAt: &newStart, DueDate: &newDue})
	assert.Equal(t, newStart, started)
	assert.Equal(t, newDue, due)

	// One-sided overrides keep the other source date.
	started, due = planCopySchedule(src, model.PlanCopyTarget{ID: 1, DueDate: &newDue})
	assert.Equal(t, src.StartedAt, started)
	assert.Equal(t, newDue, due)
}

func TestCopyRequestsRequireTargets(t *testing.T) {
	s := &CopyService{}
	ctx := context.Background()

	_, err := s.CopyCases(ctx, 1, model.CopyCasesRequest{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = s.CopySuites(ctx, 1, model.CopySuitesRequest{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = s.CopyPlans(ctx, 1, model.CopyPlansRequest{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}
