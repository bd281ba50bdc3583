package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// parseListFilter reads the query shapes shared by collection endpoints.
func parseListFilter(r *http.Request) (model.ListFilter, error) {
	q := r.URL.Query()
	var f model.ListFilter

	if raw := q.Get("project"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, apperr.Validation("invalid project")
		}
		f.ProjectID = id
	}
	if raw := q.Get("ordering"); raw != "" {
		f.Ordering = splitCSV(raw)
	}
	if raw := q.Get("is_archive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, apperr.Validation("invalid is_archive")
		}
		f.IsArchive = &v
	}
	f.Search = q.Get("search")
	f.TreeSearch = q.Get("treesearch")

	var err error
	if f.Labels, err = parseLabelFilter(r); err != nil {
		return f, err
	}

	if raw := q.Get("parent"); raw != "" {
		if raw == "null" {
			f.ParentIsNull = true
		} else {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return f, apperr.Validation("invalid parent")
			}
			f.ParentID = &id
		}
	}
	if f.Parameters, err = csvInt64(q.Get("parameters"), "parameters"); err != nil {
		return f, err
	}
	f.Attributes = splitCSV(q.Get("attributes"))
	f.AnyAttributes = splitCSV(q.Get("any_attributes"))

	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			return f, apperr.Validation("invalid limit")
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil || f.Offset < 0 {
			return f, apperr.Validation("invalid offset")
		}
	}
	return f, nil
}

func parseLabelFilter(r *http.Request) (model.LabelFilter, error) {
	q := r.URL.Query()
	var f model.LabelFilter
	var err error
	if f.Labels, err = csvInt64(q.Get("labels"), "labels"); err != nil {
		return f, err
	}
	if f.NotLabels, err = csvInt64(q.Get("not_labels"), "not_labels"); err != nil {
		return f, err
	}
	switch cond := q.Get("labels_condition"); cond {
	case "", "or":
		f.Condition = model.LabelsConditionOr
	case "and":
		f.Condition = model.LabelsConditionAnd
	default:
		return f, apperr.Validation("labels_condition must be or|and")
	}
	return f, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func csvInt64(raw, name string) ([]int64, error) {
	parts := splitCSV(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, apperr.Validation("invalid " + name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperr.Validation(name + " is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, apperr.Validation(name + " is required")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid " + name)
	}
	return t, nil
}
