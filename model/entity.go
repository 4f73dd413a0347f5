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
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Family is one of the four matchable record types.
type Family string

const (
	FamilyInvoice           Family = "INVOICE"
	FamilySubscription      Family = "SUBSCRIPTION"
	FamilyChargeDeclaration Family = "CHARGE_DECLARATION"
	FamilyPartner           Family = "PARTNER"
)

// Families lists every family in evaluation order. The order is also the
// last tie-break between partner-slot families.
var Families = []Family{FamilyInvoice, FamilySubscription, FamilyChargeDeclaration, FamilyPartner}

// Slot is the link slot a family occupies on a transaction line. A line holds
// at most one link per slot.
type Slot string

const (
	SlotInvoice Slot = "INVOICE"
	SlotPartner Slot = "PARTNER"
)

// Slot returns the link slot of the family.
func (f Family) Slot() Slot {
	if f == FamilyInvoice {
		return SlotInvoice
	}
	return SlotPartner
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// Rank is the position of the family in Families.
func (f Family) Rank() int {
	for i, known := range Families {
		if f == known {
			return i
		}
	}
	return len(Families)
}

// ParseFamily converts s into a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown family %q", s)
	}
	return f, nil
}

// Invoice statuses touched by reconciliation.
const (
	InvoiceStatusDraft     = "DRAFT"
	InvoiceStatusValidated = "VALIDATED"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusCancelled = "CANCELLED"
)

// Invoice kinds.
const (
	InvoiceKindSale     = "SALE"
	InvoiceKindPurchase = "PURCHASE"
)

// CandidateEntity is the read-only projection of a record the matcher scores.
type CandidateEntity struct {
	Family          Family           `json:"family"`
	EntityID        string           `json:"entity_id"`
	DisplayName     string           `json:"display_name"`
	KeywordCorpus   string           `json:"keyword_corpus"`
	ReferenceAmount *decimal.Decimal `json:"reference_amount,omitempty"`
	ReferenceDate   *time.Time       `json:"reference_date,omitempty"`
	Direction       Direction        `json:"direction,omitempty"`
	Status          string           `json:"status,omitempty"`
}

// CandidateFilter narrows a candidate lookup.
type CandidateFilter struct {
	IncludeInactive bool
	IncludeLinked   bool
}

// Invoice is the billing record behind the INVOICE family. A negative
// TotalTTC is a credit note.
type Invoice struct {
	InvoiceID         string          `json:"invoice_id"`
	Number            string          `json:"number"`
	Kind              string          `json:"kind"`
	Status            string          `json:"status"`
	TotalTTC          decimal.Decimal `json:"total_ttc"`
	ClientName        string          `json:"client_name"`
	IssueDate         *time.Time      `json:"issue_date,omitempty"`
	ReconciliationRef string          `json:"reconciliation_ref,omitempty"`
}

// IsCreditNote reports whether the invoice is an avoir (negative total).
func (i Invoice) IsCreditNote() bool {
	return i.TotalTTC.IsNegative()
}

// Candidate projects the invoice for matching. Sales are expected as
// credits on the statement, purchases as debits.
func (i Invoice) Candidate() CandidateEntity {
	amount := i.TotalTTC
	direction := DirectionCredit
	if i.Kind == InvoiceKindPurchase {
		direction = DirectionDebit
	}
	return CandidateEntity{
		Family:          FamilyInvoice,
		EntityID:        i.InvoiceID,
		DisplayName:     strings.TrimSpace(i.Number + " " + i.ClientName),
		KeywordCorpus:   i.ClientName,
		ReferenceAmount: &amount,
		ReferenceDate:   i.IssueDate,
		Direction:       direction,
		Status:          i.Status,
	}
}

// Subscription is a recurring payment to a partner (insurance, leasing...).
type Subscription struct {
	SubscriptionID string           `json:"subscription_id"`
	PartnerName    string           `json:"partner_name"`
	Label          string           `json:"label"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	NextDueDate    *time.Time       `json:"next_due_date,omitempty"`
	Active         bool             `json:"active"`
	LastPaidAt     *time.Time       `json:"last_paid_at,omitempty"`
}

func (s Subscription) Candidate() CandidateEntity {
	return CandidateEntity{
		Family:          FamilySubscription,
		EntityID:        s.SubscriptionID,
		DisplayName:     joinName(s.PartnerName, s.Label),
		KeywordCorpus:   joinCorpus(s.PartnerName, s.Label),
		ReferenceAmount: s.Amount,
		ReferenceDate:   s.NextDueDate,
		Direction:       DirectionDebit,
		Status:          activeStatus(s.Active),
	}
}

// ChargeDeclaration is a periodic social-charge declaration (URSSAF, retirement funds).
type ChargeDeclaration struct {
	DeclarationID string           `json:"declaration_id"`
	Organism      string           `json:"organism"`
	Label         string           `json:"label"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	Active        bool             `json:"active"`
	LastPaidAt    *time.Time       `json:"last_paid_at,omitempty"`
}

func (c ChargeDeclaration) Candidate() CandidateEntity {
	return CandidateEntity{
		Family:          FamilyChargeDeclaration,
		EntityID:        c.DeclarationID,
		DisplayName:     joinName(c.Organism, c.Label),
		KeywordCorpus:   joinCorpus(c.Organism, c.Label),
		ReferenceAmount: c.Amount,
		ReferenceDate:   c.DueDate,
		Direction:       DirectionDebit,
		Status:          activeStatus(c.Active),
	}
}

// Partner is a bank, supplier or other counterparty. Partners carry no
// amount or date.
type Partner struct {
	PartnerID string   `json:"partner_id"`
	Name      string   `json:"name"`
	Keywords  []string `json:"keywords"`
	Active    bool     `json:"active"`
}

func (p Partner) Candidate() CandidateEntity {
	return CandidateEntity{
		Family:        FamilyPartner,
		EntityID:      p.PartnerID,
		DisplayName:   p.Name,
		KeywordCorpus: joinCorpus(append([]string{p.Name}, p.Keywords...)...),
		Status:        activeStatus(p.Active),
	}
}

const (
	EntityStatusActive   = "ACTIVE"
	EntityStatusInactive = "INACTIVE"
)

func activeStatus(active bool) string {
	if active {
		return EntityStatusActive
	}
	return EntityStatusInactive
}

func joinName(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " - ")
}

// joinCorpus builds a keyword corpus where each part is its own OR group.
func joinCorpus(parts ...string) string {
	var out []string
	for _, p := range parts {
		p = strings.ReplaceAll(strings.TrimSpace(p), ",", " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
