package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/apperr"
)

func openWindow(createdAt time.Time) editWindow {
	return editWindow{
		policyAllows:  true,
		hasLimit:      true,
		limitSeconds:  3600,
		createdAt:     createdAt,
		pinnedVersion: 7,
		tipVersion:    7,
	}
}

func editReason(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.CodeResultNotEditable))
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	reason, _ := appErr.Details["reason"].(string)
	return reason
}

func TestCheckEditWindow(t *testing.T) {
	createdAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*editWindow)
		at     time.Time
		reason string
	}{
		{
			name: "inside the limit",
			at:   createdAt.Add(3599 * time.Second),
		},
		{
			name: "exactly at the limit",
			at:   createdAt.Add(3600 * time.Second),
		},
		{
			name:   "past the limit",
			at:     createdAt.Add(3601 * time.Second),
			reason: apperr.ReasonTime,
		},
		{
			name:   "case version moved on",
			mutate: func(w *editWindow) { w.tipVersion = 8 },
			at:     createdAt.Add(time.Minute),
			reason: apperr.ReasonVersion,
		},
		{
			name:   "archived result",
			mutate: func(w *editWindow) { w.resultArchived = true },
			at:     createdAt.Add(time.Minute),
			reason: apperr.ReasonArchived,
		},
		{
			name:   "archived test",
			mutate: func(w *editWindow) { w.testArchived = true },
			at:     createdAt.Add(time.Minute),
			reason: apperr.ReasonArchived,
		},
		{
			name:   "project forbids edits",
			mutate: func(w *editWindow) { w.policyAllows = false },
			at:     createdAt.Add(time.Minute),
			reason: apperr.ReasonProjectPolicy,
		},
		{
			name:   "no limit configured",
			mutate: func(w *editWindow) { w.hasLimit = false },
			at:     createdAt.Add(240 * time.Hour),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := openWindow(createdAt)
			if tc.mutate != nil {
				tc.mutate(&w)
			}
			err := checkEditWindow(w, tc.at)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.reason, editReason(t, err))
		})
	}
}

func TestCheckEditWindowArchivedTestBeatsStaleVersion(t *testing.T) {
	// An archived test freezes its results regardless of the other checks.
	w := openWindow(time.Now())
	w.testArchived = true
	w.tipVersion = 99
	assert.Equal(t, apperr.ReasonArchived, editReason(t, checkEditWindow(w, time.Now())))
}

func TestDestroyByAttributeRequiresName(t *testing.T) {
	s := &ResultService{}
	_, err := s.DestroyByAttribute(context.Background(), 1, "", "nightly")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}
