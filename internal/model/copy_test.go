package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopySuitesRequestCrossProject(t *testing.T) {
	payload := `{"suites":[{"id":4,"new_name":"smoke"}],"dst_suite_id":9,"dst_project_id":2}`
	var req CopySuitesRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	require.Len(t, req.Suites, 1)
	require.NotNil(t, req.DstProjectID)
	assert.Equal(t, int64(2), *req.DstProjectID)
	require.NotNil(t, req.DstSuiteID)
	assert.Equal(t, int64(9), *req.DstSuiteID)
}

func TestCopyPlansRequestScheduleOverrides(t *testing.T) {
	payload := `{"plans":[{"id":7,"started_at":"2026-06-01T00:00:00Z","due_date":"2026-06-15T00:00:00Z"}],"keep_assignee":true}`
	var req CopyPlansRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	require.Len(t, req.Plans, 1)
	target := req.Plans[0]
	require.NotNil(t, target.StartedAt)
	require.NotNil(t, target.DueDate)
	assert.Equal(t, 6, int(target.StartedAt.Month()))
	assert.Equal(t, 15, target.DueDate.Day())
	assert.True(t, req.KeepAssignee)
}
