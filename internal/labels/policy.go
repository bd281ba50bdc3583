// Package labels provides label attachment with version pinning and custom
// attribute validation.
package labels

import (
	"fmt"
	"strings"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// Target describes the row being validated against custom attribute policies.
type Target struct {
	Kind      model.EntityKind
	ProjectID int64
	// SuiteID is set for cases; policies with suite_ids only apply inside
	// the listed suites.
	SuiteID *int64
	// StatusID is set for results; status_specific policies only apply when
	// the result carries one of the listed statuses.
	StatusID *int64
}

// CheckPolicy validates one attribute policy against the incoming attributes
// map. A missing key for an out-of-scope target is not an error.
func CheckPolicy(attr *model.CustomAttribute, policy model.AttributePolicy, target Target, attrs map[string]interface{}) error {
	if !policy.IsRequired {
		return nil
	}

	if len(policy.SuiteIDs) > 0 {
		if target.SuiteID == nil || !containsID(policy.SuiteIDs, *target.SuiteID) {
			return nil
		}
	}
	if len(policy.StatusSpecific) > 0 {
		if target.StatusID == nil || !containsID(policy.StatusSpecific, *target.StatusID) {
			return nil
		}
	}

	value, present := attrs[attr.Name]
	if !present {
		return apperr.New(apperr.CodeMissingAttribute,
			fmt.Sprintf("required attribute %q is missing", attr.Name)).
			WithDetail("attribute", attr.Name)
	}
	if isBlank(value) {
		return apperr.New(apperr.CodeBlankAttribute,
			fmt.Sprintf("required attribute %q is blank", attr.Name)).
			WithDetail("attribute", attr.Name)
	}
	return nil
}

// Validate checks every attribute of the target's project whose applied_to
// covers the target's entity kind. Attributes defined in another project are
// never consulted.
func Validate(attributes []*model.CustomAttribute, target Target, attrs map[string]interface{}) error {
	for _, attr := range attributes {
		if attr.ProjectID != target.ProjectID {
			continue
		}
		policy, ok := attr.AppliedTo[target.Kind]
		if !ok {
			continue
		}
		if err := CheckPolicy(attr, policy, target, attrs); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeName case-folds an attribute or label name for uniqueness checks.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
