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
	"encoding/json"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/matcher"
	"github.com/blnkfinance/recon/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const activeRulesCacheKey = "recon:rules:active"

// CreateRule validates and stores a rule. Nothing is stored when the rule is invalid.
func (r *Recon) CreateRule(ctx context.Context, rule model.Rule) (*model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Creating rule")
	defer span.End()

	if err := validateRule(&rule); err != nil {
		return nil, err
	}
	if err := r.datasource.CreateRule(ctx, &rule); err != nil {
		return nil, err
	}
	r.invalidateRules(ctx)
	return &rule, nil
}

func (r *Recon) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	return r.datasource.GetRule(ctx, id)
}

// ListRules returns rules ordered by priority then id.
func (r *Recon) ListRules(ctx context.Context, activeOnly bool) ([]model.Rule, error) {
	return r.datasource.ListRules(ctx, activeOnly)
}

// UpdateRule replaces the definition of an existing rule.
func (r *Recon) UpdateRule(ctx context.Context, id string, rule model.Rule) (*model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Updating rule")
	defer span.End()

	existing, err := r.datasource.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.RuleID = existing.RuleID
	rule.CreatedAt = existing.CreatedAt
	if err := validateRule(&rule); err != nil {
		return nil, err
	}
	if err := r.datasource.UpdateRule(ctx, &rule); err != nil {
		return nil, err
	}
	r.invalidateRules(ctx)
	return &rule, nil
}

// DeactivateRule disables a rule. Links it produced stay in place.
func (r *Recon) DeactivateRule(ctx context.Context, id string) (*model.Rule, error) {
	return r.setRuleActive(ctx, id, false)
}

func (r *Recon) ActivateRule(ctx context.Context, id string) (*model.Rule, error) {
	return r.setRuleActive(ctx, id, true)
}

func (r *Recon) setRuleActive(ctx context.Context, id string, active bool) (*model.Rule, error) {
	rule, err := r.datasource.SetRuleActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	r.invalidateRules(ctx)
	return rule, nil
}

// ActiveRules returns the active rule set ordered by priority then id,
// served from the cache when possible.
func (r *Recon) ActiveRules(ctx context.Context) ([]model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Fetching active rules")
	defer span.End()

	var cached []byte
	found, err := r.cache.Get(ctx, activeRulesCacheKey, &cached)
	if err != nil {
		logrus.Warnf("rule cache read failed: %v", err)
	}
	if found {
		var rules []model.Rule
		if err := json.Unmarshal(cached, &rules); err == nil {
			return rules, nil
		}
		logrus.Warn("discarding unreadable cached rule set")
	}

	rules, err := r.datasource.ActiveRules(ctx, "")
	if err != nil {
		return nil, err
	}
	matcher.SortRules(rules)

	if encoded, err := json.Marshal(rules); err == nil {
		if err := r.cache.Set(ctx, activeRulesCacheKey, encoded, r.config.Reconciliation.RuleCacheTTL); err != nil {
			logrus.Warnf("rule cache write failed: %v", err)
		}
	}
	return rules, nil
}

func (r *Recon) invalidateRules(ctx context.Context) {
	if err := r.cache.Delete(ctx, activeRulesCacheKey); err != nil {
		logrus.Errorf("failed to invalidate rule cache: %v", err)
	}
}

func validateRule(rule *model.Rule) error {
	if err := rule.Validate(); err != nil {
		return apierror.NewAPIError(apierror.ErrValidation, "invalid rule: "+err.Error(), err)
	}
	return nil
}
