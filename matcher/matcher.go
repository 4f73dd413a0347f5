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

// Package matcher scores bank statement lines against candidate entities.
// It performs no I/O and holds no state, so lines can be scored concurrently.
package matcher

import (
	"fmt"
	"sort"

	"github.com/blnkfinance/recon/model"
)

// Thresholds are the minimum scores a family winner must reach.
type Thresholds struct {
	Invoice           int `json:"invoice"`
	Subscription      int `json:"subscription"`
	ChargeDeclaration int `json:"charge_declaration"`
	Partner           int `json:"partner"`
}

// DefaultThresholds returns 50 for invoices and 30 for the partner families.
func DefaultThresholds() Thresholds {
	return Thresholds{Invoice: 50, Subscription: 30, ChargeDeclaration: 30, Partner: 30}
}

// For returns the threshold of a family.
func (t Thresholds) For(family model.Family) int {
	switch family {
	case model.FamilyInvoice:
		return t.Invoice
	case model.FamilySubscription:
		return t.Subscription
	case model.FamilyChargeDeclaration:
		return t.ChargeDeclaration
	case model.FamilyPartner:
		return t.Partner
	}
	return model.MaxScore + 1
}

// RuleError is returned when a rule condition cannot be evaluated.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("malformed rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Result is the outcome of matching one line.
type Result struct {
	LineID string
	// Ranked holds, per family, every candidate at least one rule fired for,
	// best first.
	Ranked map[model.Family][]model.MatchCandidate
	// Winners holds the best candidate of each family that reached its threshold.
	Winners map[model.Family]model.MatchCandidate
	// SlotWinners holds the winner of each link slot.
	SlotWinners map[model.Slot]model.MatchCandidate
	// Scores is the full score table, including candidates that scored zero.
	Scores []model.MatchCandidate

	thresholds Thresholds
}

// Eligible returns every candidate of the slot that reached its family
// threshold, in winner order. The first element equals SlotWinners[slot].
func (r Result) Eligible(slot model.Slot) []model.MatchCandidate {
	var out []model.MatchCandidate
	for _, family := range model.Families {
		if family.Slot() != slot {
			continue
		}
		for _, c := range r.Ranked[family] {
			if c.TotalScore >= r.thresholds.For(family) {
				out = append(out, c)
			}
		}
	}
	sortCandidates(out)
	return out
}

// Suggestions returns every candidate with a positive score across families.
func (r Result) Suggestions() []model.MatchCandidate {
	var out []model.MatchCandidate
	for _, family := range model.Families {
		for _, c := range r.Ranked[family] {
			if c.TotalScore > 0 {
				out = append(out, c)
			}
		}
	}
	sortCandidates(out)
	return out
}

// HasWinner reports whether any family crossed its threshold.
func (r Result) HasWinner() bool {
	return len(r.Winners) > 0
}

type tally struct {
	candidate model.CandidateEntity
	score     int
	rules     []string
	best      int
	fired     bool
}

// Match evaluates every active rule against every applicable candidate and
// selects at most one winner per family. It never fails for "no match"; it
// only fails when a rule condition is malformed.
func Match(line model.TransactionLine, rules []model.Rule, candidates map[model.Family][]model.CandidateEntity, thresholds Thresholds) (Result, error) {
	active, err := orderRules(rules)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		LineID:      line.LineID,
		Ranked:      make(map[model.Family][]model.MatchCandidate),
		Winners:     make(map[model.Family]model.MatchCandidate),
		SlotWinners: make(map[model.Slot]model.MatchCandidate),
		thresholds:  thresholds,
	}

	for _, family := range model.Families {
		pool := candidates[family]
		tallies := make([]tally, len(pool))
		for i, c := range pool {
			tallies[i] = tally{candidate: c}
		}

		for _, rule := range active {
			if !appliesTo(rule, family) {
				continue
			}
			for i := range tallies {
				ok, err := fires(rule, line, tallies[i].candidate)
				if err != nil {
					return Result{}, &RuleError{RuleID: rule.RuleID, Err: err}
				}
				if !ok {
					continue
				}
				t := &tallies[i]
				if !t.fired || rule.Priority < t.best {
					t.best = rule.Priority
				}
				t.fired = true
				t.score += rule.Score()
				t.rules = append(t.rules, rule.RuleID)
			}
		}

		var ranked []model.MatchCandidate
		for _, t := range tallies {
			mc := toCandidate(line, family, t)
			result.Scores = append(result.Scores, mc)
			if t.fired {
				ranked = append(ranked, mc)
			}
		}
		sortCandidates(ranked)
		result.Ranked[family] = ranked

		if len(ranked) > 0 && ranked[0].TotalScore >= thresholds.For(family) {
			result.Winners[family] = ranked[0]
		}
	}

	for _, slot := range []model.Slot{model.SlotInvoice, model.SlotPartner} {
		if eligible := result.Eligible(slot); len(eligible) > 0 {
			result.SlotWinners[slot] = eligible[0]
		}
	}

	return result, nil
}

func toCandidate(line model.TransactionLine, family model.Family, t tally) model.MatchCandidate {
	return model.MatchCandidate{
		LineID:              line.LineID,
		Family:              family,
		EntityID:            t.candidate.EntityID,
		DisplayName:         t.candidate.DisplayName,
		TotalScore:          model.ClampScore(t.score),
		ContributingRuleIDs: t.rules,
		BestPriority:        t.best,
	}
}

// orderRules drops inactive rules, validates the rest and sorts them by
// priority then rule id.
func orderRules(rules []model.Rule) ([]model.Rule, error) {
	active := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		r := rule
		if err := r.Validate(); err != nil {
			return nil, &RuleError{RuleID: rule.RuleID, Err: err}
		}
		active = append(active, rule)
	}
	SortRules(active)
	return active, nil
}

// SortRules orders rules by priority ascending, then rule id ascending.
func SortRules(rules []model.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].RuleID < rules[j].RuleID
	})
}

// sortCandidates orders by score desc, lowest contributing priority, entity
// id, then family order.
func sortCandidates(c []model.MatchCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.BestPriority != b.BestPriority {
			return a.BestPriority < b.BestPriority
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Family.Rank() < b.Family.Rank()
	})
}
