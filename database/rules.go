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

package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
)

const ruleColumns = `rule_id, name, description, type, active, priority, score_contribution, condition, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (model.Rule, error) {
	var (
		rule        model.Rule
		description *string
		condition   []byte
	)
	err := row.Scan(&rule.RuleID, &rule.Name, &description, &rule.Type, &rule.Active,
		&rule.Priority, &rule.ScoreContribution, &condition, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return model.Rule{}, err
	}
	if description != nil {
		rule.Description = *description
	}
	// Rows written before the score bound was enforced still score in range.
	rule.ScoreContribution = model.ClampScore(rule.ScoreContribution)
	rule.Condition, err = model.DecodeCondition(rule.Type, condition)
	if err != nil {
		return model.Rule{}, err
	}
	return rule, nil
}

// CreateRule stores a new rule. The caller validates it first.
func (d Datasource) CreateRule(ctx context.Context, rule *model.Rule) error {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Saving rule to db")
	defer span.End()

	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrValidation, "failed to encode rule condition", err)
	}

	now := time.Now().UTC()
	if rule.RuleID == "" {
		rule.RuleID = model.GenerateUUIDWithSuffix("rule")
	}
	rule.CreatedAt, rule.UpdatedAt = now, now

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO recon.rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rule.RuleID, rule.Name, rule.Description, rule.Type, rule.Active, rule.Priority,
		rule.ScoreContribution, condition, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return repoError(err, "failed to create rule")
	}
	return nil
}

func (d Datasource) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Fetching rule from db")
	defer span.End()

	rule, err := scanRule(d.Conn.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM recon.rules WHERE rule_id = $1
	`, id))
	if err != nil {
		return nil, notFoundOr(err, "rule")
	}
	return &rule, nil
}

// ListRules returns rules ordered by priority then rule id.
func (d Datasource) ListRules(ctx context.Context, activeOnly bool) ([]model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Listing rules")
	defer span.End()

	return d.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM recon.rules
		WHERE ($1 = FALSE OR active)
		ORDER BY priority ASC, rule_id ASC
	`, activeOnly)
}

// ActiveRules returns active rules, restricted to ruleType when it is not empty.
func (d Datasource) ActiveRules(ctx context.Context, ruleType model.RuleType) ([]model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Fetching active rules")
	defer span.End()

	return d.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM recon.rules
		WHERE active AND ($1 = '' OR type = $1)
		ORDER BY priority ASC, rule_id ASC
	`, string(ruleType))
}

func (d Datasource) queryRules(ctx context.Context, query string, args ...interface{}) ([]model.Rule, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repoError(err, "failed to retrieve rules")
	}
	defer rows.Close()

	rules := []model.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, repoError(err, "failed to scan rule")
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over rules")
	}
	return rules, nil
}

func (d Datasource) UpdateRule(ctx context.Context, rule *model.Rule) error {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Updating rule")
	defer span.End()

	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrValidation, "failed to encode rule condition", err)
	}
	rule.UpdatedAt = time.Now().UTC()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.rules
		SET name = $2, description = $3, type = $4, active = $5, priority = $6,
			score_contribution = $7, condition = $8, updated_at = $9
		WHERE rule_id = $1
	`, rule.RuleID, rule.Name, rule.Description, rule.Type, rule.Active, rule.Priority,
		rule.ScoreContribution, condition, rule.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return repoError(err, "failed to update rule")
	}
	return expectOneRow(result, "rule")
}

// SetRuleActive toggles a rule. Existing links are left untouched.
func (d Datasource) SetRuleActive(ctx context.Context, id string, active bool) (*model.Rule, error) {
	ctx, span := otel.Tracer("Rules").Start(ctx, "Toggling rule")
	defer span.End()

	rule, err := scanRule(d.Conn.QueryRowContext(ctx, `
		UPDATE recon.rules SET active = $2, updated_at = $3
		WHERE rule_id = $1
		RETURNING `+ruleColumns, id, active, time.Now().UTC()))
	if err != nil {
		return nil, notFoundOr(err, "rule")
	}
	return &rule, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectOneRow(result rowsAffected, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return repoError(err, "failed to read affected rows")
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, what+" not found", nil)
	}
	return nil
}
