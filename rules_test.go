/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package recon

import (
	"context"
	"testing"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateRule_InvalidIsNotStored(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	rule := amountRule("", 1, 45)
	rule.Condition = &model.AmountCondition{}

	_, err := r.CreateRule(context.Background(), rule)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
	assert.Contains(t, err.Error(), "amount condition requires a tolerance")
	ds.AssertNotCalled(t, "CreateRule", mock.Anything, mock.Anything)
}

func TestCreateRule_RejectsScoreAboveMax(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	_, err := r.CreateRule(context.Background(), amountRule("", 1, 150))
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
	assert.Contains(t, err.Error(), "score_contribution: must be no greater than 100")
	assert.NotContains(t, err.Error(), "name")
	ds.AssertNotCalled(t, "CreateRule", mock.Anything, mock.Anything)
}

func TestActiveRules_CachedUntilMutation(t *testing.T) {
	r, ds, _ := newTestRecon(t)
	ctx := context.Background()

	ds.On("ActiveRules", mock.Anything, model.RuleType("")).Return([]model.Rule{
		dateRule("rule_b", 2, 10),
		subscriptionRule("rule_c", 1, 60, "MMA IARD"),
		amountRule("rule_a", 1, 45),
	}, nil)

	first, err := r.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"rule_a", "rule_c", "rule_b"}, []string{first[0].RuleID, first[1].RuleID, first[2].RuleID})

	second, err := r.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, second, 3)
	cond, ok := second[1].Condition.(*model.SubscriptionCondition)
	require.True(t, ok)
	assert.Equal(t, []string{"MMA IARD"}, cond.Keywords)
	ds.AssertNumberOfCalls(t, "ActiveRules", 1)

	ds.On("SetRuleActive", mock.Anything, "rule_b", false).Return(&model.Rule{RuleID: "rule_b"}, nil)
	_, err = r.DeactivateRule(ctx, "rule_b")
	require.NoError(t, err)

	_, err = r.ActiveRules(ctx)
	require.NoError(t, err)
	ds.AssertNumberOfCalls(t, "ActiveRules", 2)
}

func TestCreateRule_InvalidatesCache(t *testing.T) {
	r, ds, _ := newTestRecon(t)
	ctx := context.Background()

	ds.On("ActiveRules", mock.Anything, model.RuleType("")).Return([]model.Rule{amountRule("rule_a", 1, 45)}, nil)
	ds.On("CreateRule", mock.Anything, mock.AnythingOfType("*model.Rule")).Return(nil)

	_, err := r.ActiveRules(ctx)
	require.NoError(t, err)

	rule := subscriptionRule("", 1, 60, gofakeit.Company())
	created, err := r.CreateRule(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, model.RuleSubscription, created.Type)

	_, err = r.ActiveRules(ctx)
	require.NoError(t, err)
	ds.AssertNumberOfCalls(t, "ActiveRules", 2)
}

func TestCreateRule_RequiresName(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	rule := amountRule("", 1, 45)
	rule.Name = ""
	_, err := r.CreateRule(context.Background(), rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name: cannot be blank")
	ds.AssertNotCalled(t, "CreateRule", mock.Anything, mock.Anything)
}

func TestUpdateRule_KeepsIdentity(t *testing.T) {
	r, ds, _ := newTestRecon(t)
	ctx := context.Background()

	existing := amountRule("rule_a", 1, 45)
	existing.CreatedAt = testDay
	ds.On("GetRule", mock.Anything, "rule_a").Return(&existing, nil)
	ds.On("UpdateRule", mock.Anything, mock.AnythingOfType("*model.Rule")).Return(nil)

	update := amountRule("rule_other", 3, 30)
	updated, err := r.UpdateRule(ctx, "rule_a", update)
	require.NoError(t, err)
	assert.Equal(t, "rule_a", updated.RuleID)
	assert.Equal(t, testDay, updated.CreatedAt)
	assert.Equal(t, 30, updated.ScoreContribution)
}

func TestUpdateRule_NotFound(t *testing.T) {
	r, ds, _ := newTestRecon(t)
	ds.On("GetRule", mock.Anything, "rule_missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "rule not found", nil))

	_, err := r.UpdateRule(context.Background(), "rule_missing", amountRule("", 1, 45))
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	ds.AssertNotCalled(t, "UpdateRule", mock.Anything, mock.Anything)
}
