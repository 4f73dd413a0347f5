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

package matcher

import (
	"fmt"
	"time"

	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
)

// appliesTo reports whether the rule is evaluated against the given family.
func appliesTo(rule model.Rule, family model.Family) bool {
	switch c := rule.Condition.(type) {
	case *model.AmountCondition:
		return inFamilies(c.Families, family)
	case *model.DateCondition:
		return inFamilies(c.Families, family)
	case *model.LabelCondition:
		return inFamiliesOrInvoice(c.Families, family)
	case *model.TransactionTypeCondition:
		return inFamiliesOrInvoice(c.Families, family)
	case *model.PartnerCondition:
		return family == model.FamilyPartner
	case *model.SubscriptionCondition:
		return family == model.FamilySubscription
	case *model.ChargeDeclarationCondition:
		return family == model.FamilyChargeDeclaration
	case *model.CustomCondition:
		return inFamilies(c.Families, family)
	}
	return false
}

// inFamilies treats an empty restriction as "every family".
func inFamilies(families []model.Family, family model.Family) bool {
	if len(families) == 0 {
		return true
	}
	for _, f := range families {
		if f == family {
			return true
		}
	}
	return false
}

// inFamiliesOrInvoice treats an empty restriction as "invoices only". Label
// and direction rules carry nothing entity specific, so on the partner
// families they would score every entity alike.
func inFamiliesOrInvoice(families []model.Family, family model.Family) bool {
	if len(families) == 0 {
		return family == model.FamilyInvoice
	}
	return inFamilies(families, family)
}

// fires evaluates a single rule for one (line, candidate) pair.
func fires(rule model.Rule, line model.TransactionLine, candidate model.CandidateEntity) (bool, error) {
	switch c := rule.Condition.(type) {
	case *model.AmountCondition:
		return amountMatches(line, candidate, c.ToleranceOrDefault()), nil
	case *model.DateCondition:
		return dateMatches(line, candidate, c.Window()), nil
	case *model.LabelCondition:
		return keywordsMatch(&c.KeywordCondition, line, candidate), nil
	case *model.PartnerCondition:
		return keywordsMatch(&c.KeywordCondition, line, candidate), nil
	case *model.SubscriptionCondition:
		return keywordsMatch(&c.KeywordCondition, line, candidate), nil
	case *model.ChargeDeclarationCondition:
		return keywordsMatch(&c.KeywordCondition, line, candidate), nil
	case *model.TransactionTypeCondition:
		return directionMatches(c, line, candidate), nil
	case *model.CustomCondition:
		return customMatches(c, line, candidate), nil
	case nil:
		return false, fmt.Errorf("rule %s has no condition", rule.RuleID)
	}
	return false, fmt.Errorf("rule %s has unsupported condition %T", rule.RuleID, rule.Condition)
}

// amountMatches compares absolute amounts; exact within tolerance or nothing.
func amountMatches(line model.TransactionLine, candidate model.CandidateEntity, tolerance decimal.Decimal) bool {
	if candidate.ReferenceAmount == nil {
		return false
	}
	diff := line.Amount().Abs().Sub(candidate.ReferenceAmount.Abs()).Abs()
	return diff.LessThanOrEqual(tolerance)
}

func dateMatches(line model.TransactionLine, candidate model.CandidateEntity, windowDays int) bool {
	if candidate.ReferenceDate == nil || line.Date.IsZero() {
		return false
	}
	return dayDistance(line.Date, *candidate.ReferenceDate) <= windowDays
}

// dayDistance counts calendar days between a and b, ignoring time of day.
func dayDistance(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func keywordsMatch(c *model.KeywordCondition, line model.TransactionLine, candidate model.CandidateEntity) bool {
	if c.TargetID != "" && c.TargetID != candidate.EntityID {
		return false
	}
	if c.Wildcard() {
		return true
	}

	expr := ParseKeywords(c.Keywords...)
	if !expr.Empty() && !expr.Match(line.Label) {
		return false
	}
	if c.MatchEntityName {
		corpus := ParseKeywords(candidate.KeywordCorpus)
		if corpus.Empty() || !corpus.Match(line.Label) {
			return false
		}
	}
	return true
}

func directionMatches(c *model.TransactionTypeCondition, line model.TransactionLine, candidate model.CandidateEntity) bool {
	expected := c.ExpectedDirection(candidate.Direction)
	if expected == "" {
		return false
	}
	return line.Direction() == expected
}

// customMatches ANDs every configured primitive.
func customMatches(c *model.CustomCondition, line model.TransactionLine, candidate model.CandidateEntity) bool {
	if c.TargetID != "" && c.TargetID != candidate.EntityID {
		return false
	}
	if c.Amount == nil && c.Date == nil && c.Keywords == nil && c.Direction == nil {
		return false
	}
	if c.Amount != nil && !amountMatches(line, candidate, c.Amount.ToleranceOrDefault()) {
		return false
	}
	if c.Date != nil && !dateMatches(line, candidate, c.Date.Window()) {
		return false
	}
	if c.Keywords != nil && !keywordsMatch(c.Keywords, line, candidate) {
		return false
	}
	if c.Direction != nil && !directionMatches(c.Direction, line, candidate) {
		return false
	}
	return true
}
