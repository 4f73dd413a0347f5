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

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// RuleType is the closed taxonomy of matching rules.
type RuleType string

const (
	RuleAmount            RuleType = "AMOUNT"
	RuleDate              RuleType = "DATE"
	RuleLabel             RuleType = "LABEL"
	RuleTransactionType   RuleType = "TRANSACTION_TYPE"
	RulePartner           RuleType = "PARTNER"
	RuleSubscription      RuleType = "SUBSCRIPTION"
	RuleChargeDeclaration RuleType = "CHARGE_DECLARATION"
	RuleCustom            RuleType = "CUSTOM"
)

// RuleTypes lists every supported rule type.
var RuleTypes = []RuleType{
	RuleAmount, RuleDate, RuleLabel, RuleTransactionType,
	RulePartner, RuleSubscription, RuleChargeDeclaration, RuleCustom,
}

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	for _, known := range RuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	MinScore = 0
	MaxScore = 100
)

var (
	DefaultAmountTolerance = decimal.NewFromFloat(0.01)
	DefaultDateWindowDays  = 5
)

// Rule is a configured matching heuristic.
type Rule struct {
	ID                int64     `json:"-"`
	RuleID            string    `json:"rule_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Type              RuleType  `json:"type"`
	Active            bool      `json:"active"`
	Priority          int       `json:"priority"`
	ScoreContribution int       `json:"score_contribution"`
	Condition         Condition `json:"condition"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Score returns the contribution clamped to [0,100].
func (r Rule) Score() int {
	return ClampScore(r.ScoreContribution)
}

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Validate checks the rule and its type-specific condition.
func (r *Rule) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.By(func(value interface{}) error {
			if !r.Type.Valid() {
				return fmt.Errorf("unknown rule type %q", r.Type)
			}
			return nil
		})),
		validation.Field(&r.ScoreContribution, validation.Min(MinScore), validation.Max(MaxScore)),
	)
	if err != nil {
		return err
	}
	if r.Condition == nil {
		return errors.New("condition is required")
	}
	if r.Condition.RuleType() != r.Type {
		return fmt.Errorf("condition of type %s does not match rule type %s", r.Condition.RuleType(), r.Type)
	}
	return r.Condition.Validate()
}

type ruleJSON struct {
	RuleID            string          `json:"rule_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Type              RuleType        `json:"type"`
	Active            bool            `json:"active"`
	Priority          int             `json:"priority"`
	ScoreContribution int             `json:"score_contribution"`
	Condition         json.RawMessage `json:"condition"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MarshalJSON flattens the condition variant into the condition field.
func (r Rule) MarshalJSON() ([]byte, error) {
	raw := json.RawMessage("null")
	if r.Condition != nil {
		b, err := json.Marshal(r.Condition)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(ruleJSON{
		RuleID:            r.RuleID,
		Name:              r.Name,
		Description:       r.Description,
		Type:              r.Type,
		Active:            r.Active,
		Priority:          r.Priority,
		ScoreContribution: r.ScoreContribution,
		Condition:         raw,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	})
}

// UnmarshalJSON decodes the condition into the variant selected by type.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var aux ruleJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.RuleID = aux.RuleID
	r.Name = aux.Name
	r.Description = aux.Description
	r.Type = aux.Type
	r.Active = aux.Active
	r.Priority = aux.Priority
	r.ScoreContribution = aux.ScoreContribution
	r.CreatedAt = aux.CreatedAt
	r.UpdatedAt = aux.UpdatedAt

	cond, err := DecodeCondition(aux.Type, aux.Condition)
	if err != nil {
		return err
	}
	r.Condition = cond
	return nil
}

// Condition is the type-specific payload of a rule.
type Condition interface {
	RuleType() RuleType
	Validate() error
}

// DecodeCondition parses raw into the condition variant of t. Unknown fields
// are rejected so that typos surface at creation time.
func DecodeCondition(t RuleType, raw json.RawMessage) (Condition, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	var cond Condition
	switch t {
	case RuleAmount:
		cond = &AmountCondition{}
	case RuleDate:
		cond = &DateCondition{}
	case RuleLabel:
		cond = &LabelCondition{}
	case RuleTransactionType:
		cond = &TransactionTypeCondition{}
	case RulePartner:
		cond = &PartnerCondition{}
	case RuleSubscription:
		cond = &SubscriptionCondition{}
	case RuleChargeDeclaration:
		cond = &ChargeDeclarationCondition{}
	case RuleCustom:
		cond = &CustomCondition{}
	default:
		return nil, fmt.Errorf("unknown rule type %q", t)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cond); err != nil {
		return nil, fmt.Errorf("invalid %s condition: %w", t, err)
	}
	return cond, nil
}

// AmountCondition fires when the absolute line amount equals the entity
// reference amount within Tolerance.
type AmountCondition struct {
	Tolerance *decimal.Decimal `json:"tolerance"`
	Families  []Family         `json:"families,omitempty"`
}

func (c *AmountCondition) RuleType() RuleType { return RuleAmount }

func (c *AmountCondition) Validate() error {
	if c.Tolerance == nil {
		return errors.New("amount condition requires a tolerance")
	}
	if err := validateTolerance(c.Tolerance); err != nil {
		return err
	}
	return validateFamilies(c.Families)
}

// ToleranceOrDefault returns the configured tolerance or 0.01.
func (c *AmountCondition) ToleranceOrDefault() decimal.Decimal {
	if c == nil || c.Tolerance == nil {
		return DefaultAmountTolerance
	}
	return *c.Tolerance
}

// DateCondition fires when the line date is within WindowDays of the entity date.
type DateCondition struct {
	WindowDays *int     `json:"window_days,omitempty"`
	Families   []Family `json:"families,omitempty"`
}

func (c *DateCondition) RuleType() RuleType { return RuleDate }

func (c *DateCondition) Validate() error {
	if c.WindowDays != nil && *c.WindowDays < 0 {
		return errors.New("window_days must be non-negative")
	}
	return validateFamilies(c.Families)
}

// Window returns the configured window or the default of five days.
func (c *DateCondition) Window() int {
	if c == nil || c.WindowDays == nil {
		return DefaultDateWindowDays
	}
	return *c.WindowDays
}

// KeywordCondition is the shared keyword payload. Keywords use the syntax
// "A B, C": spaces AND tokens inside a group, commas OR groups.
type KeywordCondition struct {
	TargetID        string   `json:"target_id,omitempty"`
	Keywords        []string `json:"keywords"`
	MatchEntityName bool     `json:"match_entity_name,omitempty"`
}

// Wildcard reports whether the condition matches every candidate.
func (c *KeywordCondition) Wildcard() bool {
	if c.MatchEntityName {
		return false
	}
	for _, k := range c.Keywords {
		if k != "" {
			return false
		}
	}
	return true
}

func (c *KeywordCondition) validate(requireKeywords bool) error {
	if requireKeywords && c.Keywords == nil {
		return errors.New("keywords array is required")
	}
	return nil
}

// LabelCondition matches keywords against the line label.
type LabelCondition struct {
	KeywordCondition
	Families []Family `json:"families,omitempty"`
}

func (c *LabelCondition) RuleType() RuleType { return RuleLabel }

func (c *LabelCondition) Validate() error {
	if err := c.validate(false); err != nil {
		return err
	}
	return validateFamilies(c.Families)
}

// PartnerCondition matches keywords for bank/partner records.
type PartnerCondition struct {
	KeywordCondition
}

func (c *PartnerCondition) RuleType() RuleType { return RulePartner }

func (c *PartnerCondition) Validate() error { return c.validate(false) }

// SubscriptionCondition matches keywords for partner subscriptions.
type SubscriptionCondition struct {
	KeywordCondition
}

func (c *SubscriptionCondition) RuleType() RuleType { return RuleSubscription }

func (c *SubscriptionCondition) Validate() error { return c.validate(true) }

// ChargeDeclarationCondition matches keywords for social-charge declarations.
type ChargeDeclarationCondition struct {
	KeywordCondition
}

func (c *ChargeDeclarationCondition) RuleType() RuleType { return RuleChargeDeclaration }

func (c *ChargeDeclarationCondition) Validate() error { return c.validate(true) }

// TransactionTypeCondition fires when the line polarity matches Direction.
type TransactionTypeCondition struct {
	Direction Direction `json:"direction,omitempty"`
	Families  []Family  `json:"families,omitempty"`
}

func (c *TransactionTypeCondition) RuleType() RuleType { return RuleTransactionType }

func (c *TransactionTypeCondition) Validate() error {
	switch c.Direction {
	case "", DirectionDebit, DirectionCredit, DirectionEntity:
	default:
		return fmt.Errorf("invalid direction %q", c.Direction)
	}
	return validateFamilies(c.Families)
}

// ExpectedDirection resolves ENTITY (the default) against the entity direction.
func (c *TransactionTypeCondition) ExpectedDirection(entity Direction) Direction {
	if c.Direction == "" || c.Direction == DirectionEntity {
		return entity
	}
	return c.Direction
}

// CustomCondition ANDs any combination of the primitive conditions.
type CustomCondition struct {
	Families  []Family                  `json:"families,omitempty"`
	TargetID  string                    `json:"target_id,omitempty"`
	Amount    *CustomAmount             `json:"amount,omitempty"`
	Date      *DateCondition            `json:"date,omitempty"`
	Keywords  *KeywordCondition         `json:"keywords,omitempty"`
	Direction *TransactionTypeCondition `json:"direction,omitempty"`
}

// CustomAmount is the amount primitive of a custom rule; tolerance is optional.
type CustomAmount struct {
	Tolerance *decimal.Decimal `json:"tolerance,omitempty"`
}

// ToleranceOrDefault returns the configured tolerance or 0.01.
func (c *CustomAmount) ToleranceOrDefault() decimal.Decimal {
	if c == nil || c.Tolerance == nil {
		return DefaultAmountTolerance
	}
	return *c.Tolerance
}

func (c *CustomCondition) RuleType() RuleType { return RuleCustom }

func (c *CustomCondition) Validate() error {
	if c.Amount == nil && c.Date == nil && c.Keywords == nil && c.Direction == nil {
		return errors.New("custom condition requires at least one of amount, date, keywords or direction")
	}
	if c.Amount != nil {
		if err := validateTolerance(c.Amount.Tolerance); err != nil {
			return err
		}
	}
	if c.Date != nil {
		if err := c.Date.Validate(); err != nil {
			return err
		}
	}
	if c.Direction != nil {
		if err := c.Direction.Validate(); err != nil {
			return err
		}
	}
	return validateFamilies(c.Families)
}

func validateTolerance(tolerance *decimal.Decimal) error {
	if tolerance != nil && tolerance.IsNegative() {
		return errors.New("tolerance must be non-negative")
	}
	return nil
}

func validateFamilies(families []Family) error {
	for _, f := range families {
		if !f.Valid() {
			return fmt.Errorf("unknown family %q", f)
		}
	}
	return nil
}
