package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

func TestParseListFilterFull(t *testing.T) {
	r := httptest.NewRequest("GET",
		"/testcase?project=7&ordering=-created_at,name&is_archive=true&search=login"+
			"&labels=1,2&not_labels=3&labels_condition=and&parent=42"+
			"&parameters=5,6&attributes=browser,os&any_attributes=flaky&limit=50&offset=10", nil)

	f, err := parseListFilter(r)
	require.NoError(t, err)

	assert.Equal(t, int64(7), f.ProjectID)
	assert.Equal(t, []string{"-created_at", "name"}, f.Ordering)
	require.NotNil(t, f.IsArchive)
	assert.True(t, *f.IsArchive)
	assert.Equal(t, "login", f.Search)
	assert.Equal(t, []int64{1, 2}, f.Labels.Labels)
	assert.Equal(t, []int64{3}, f.Labels.NotLabels)
	assert.Equal(t, model.LabelsConditionAnd, f.Labels.Condition)
	require.NotNil(t, f.ParentID)
	assert.Equal(t, int64(42), *f.ParentID)
	assert.False(t, f.ParentIsNull)
	assert.Equal(t, []int64{5, 6}, f.Parameters)
	assert.Equal(t, []string{"browser", "os"}, f.Attributes)
	assert.Equal(t, []string{"flaky"}, f.AnyAttributes)
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 10, f.Offset)
}

func TestParseListFilterDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/testcase", nil)
	f, err := parseListFilter(r)
	require.NoError(t, err)

	assert.Zero(t, f.ProjectID)
	assert.Nil(t, f.IsArchive)
	assert.Nil(t, f.ParentID)
	assert.Equal(t, model.LabelsConditionOr, f.Labels.Condition)
	assert.True(t, f.Labels.Empty())
}

func TestParseListFilterParentNull(t *testing.T) {
	r := httptest.NewRequest("GET", "/testplan?parent=null", nil)
	f, err := parseListFilter(r)
	require.NoError(t, err)

	assert.True(t, f.ParentIsNull)
	assert.Nil(t, f.ParentID)
}

func TestParseListFilterRejectsBadCondition(t *testing.T) {
	r := httptest.NewRequest("GET", "/testcase?labels_condition=xor", nil)
	_, err := parseListFilter(r)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestParseListFilterRejectsBadIDs(t *testing.T) {
	for _, target := range []string{
		"/testcase?labels=1,x",
		"/testcase?parent=abc",
		"/testcase?project=seven",
		"/testcase?limit=-1",
	} {
		r := httptest.NewRequest("GET", target, nil)
		_, err := parseListFilter(r)
		assert.Error(t, err, target)
	}
}

func TestDestroyResultsByAttributeParams(t *testing.T) {
	h := NewResultHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// The plan and attribute name are mandatory; the value may be empty but
	// must be present.
	for _, target := range []string{
		"/testresult/attributes?name=build&value=42",
		"/testresult/attributes?plan=3&value=42",
		"/testresult/attributes?plan=3&name=build",
	} {
		w := httptest.NewRecorder()
		h.DestroyByAttribute(w, httptest.NewRequest(http.MethodDelete, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestProjectStatisticsRouteRegistered(t *testing.T) {
	h := NewProjectHandler(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	var m mux.RouteMatch
	req := httptest.NewRequest(http.MethodGet, "/projects/3/statistics", nil)
	assert.True(t, r.Match(req, &m))
}

func TestRequesterID(t *testing.T) {
	r := httptest.NewRequest("GET", "/testcase", nil)
	_, err := requesterID(r)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	r.Header.Set("X-User-ID", "15")
	id, err := requesterID(r)
	require.NoError(t, err)
	assert.Equal(t, int64(15), id)

	r.Header.Set("X-User-ID", "zero")
	_, err = requesterID(r)
	assert.Error(t, err)
}
