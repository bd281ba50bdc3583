package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

func requiredAttr(name string, policy model.AttributePolicy) *model.CustomAttribute {
	return &model.CustomAttribute{
		ID:        1,
		ProjectID: 1,
		Name:      name,
		Type:      model.AttributeTypeText,
		AppliedTo: map[model.EntityKind]model.AttributePolicy{model.KindCase: policy},
	}
}

func TestCheckPolicyRequired(t *testing.T) {
	attr := requiredAttr("component", model.AttributePolicy{IsRequired: true})
	target := Target{Kind: model.KindCase, ProjectID: 1}

	err := CheckPolicy(attr, attr.AppliedTo[model.KindCase], target, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeMissingAttribute))

	err = CheckPolicy(attr, attr.AppliedTo[model.KindCase], target,
		map[string]interface{}{"component": "  "})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeBlankAttribute))

	err = CheckPolicy(attr, attr.AppliedTo[model.KindCase], target,
		map[string]interface{}{"component": "core"})
	assert.NoError(t, err)
}

func TestCheckPolicySuiteScope(t *testing.T) {
	attr := requiredAttr("component", model.AttributePolicy{
		IsRequired: true,
		SuiteIDs:   []int64{10, 11},
	})
	policy := attr.AppliedTo[model.KindCase]

	outOfScope := int64(99)
	inScope := int64(10)

	// A missing key on an out-of-scope target is not an error.
	err := CheckPolicy(attr, policy, Target{Kind: model.KindCase, ProjectID: 1, SuiteID: &outOfScope}, nil)
	assert.NoError(t, err)

	err = CheckPolicy(attr, policy, Target{Kind: model.KindCase, ProjectID: 1, SuiteID: &inScope}, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeMissingAttribute))
}

func TestCheckPolicyStatusSpecific(t *testing.T) {
	attr := &model.CustomAttribute{
		ID: 2, ProjectID: 1, Name: "failure_reason", Type: model.AttributeTypeText,
		AppliedTo: map[model.EntityKind]model.AttributePolicy{
			model.KindResult: {IsRequired: true, StatusSpecific: []int64{3}},
		},
	}
	policy := attr.AppliedTo[model.KindResult]

	passed := int64(1)
	failed := int64(3)

	err := CheckPolicy(attr, policy, Target{Kind: model.KindResult, ProjectID: 1, StatusID: &passed}, nil)
	assert.NoError(t, err)

	err = CheckPolicy(attr, policy, Target{Kind: model.KindResult, ProjectID: 1, StatusID: &failed}, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeMissingAttribute))
}

func TestValidateSkipsForeignProjects(t *testing.T) {
	foreign := requiredAttr("component", model.AttributePolicy{IsRequired: true})
	foreign.ProjectID = 2

	err := Validate([]*model.CustomAttribute{foreign},
		Target{Kind: model.KindCase, ProjectID: 1}, nil)
	assert.NoError(t, err)
}

func TestValidateSkipsOtherKinds(t *testing.T) {
	attr := requiredAttr("component", model.AttributePolicy{IsRequired: true})

	err := Validate([]*model.CustomAttribute{attr},
		Target{Kind: model.KindPlan, ProjectID: 1}, nil)
	assert.NoError(t, err)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "component", NormalizeName("  Component "))
}
