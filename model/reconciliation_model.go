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
	"time"

	"github.com/shopspring/decimal"
)

type LinkMethod string

const (
	LinkMethodAuto   LinkMethod = "AUTO"
	LinkMethodManual LinkMethod = "MANUAL"
)

// Link is a persisted reconciliation between a transaction line and an entity.
type Link struct {
	ID             int64      `json:"-"`
	LinkNumber     string     `json:"link_number"`
	LineID         string     `json:"line_id"`
	StatementID    string     `json:"statement_id"`
	Family         Family     `json:"family"`
	Slot           Slot       `json:"slot"`
	EntityID       string     `json:"entity_id"`
	Method         LinkMethod `json:"method"`
	Score          int        `json:"score"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	Actor          string     `json:"actor"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LinkRequest carries everything the ledger needs to create a link.
type LinkRequest struct {
	Line     TransactionLine
	Family   Family
	EntityID string
	Method   LinkMethod
	Score    int
	Actor    string
	Replace  bool
}

const (
	LinkEventCreated = "CREATED"
	LinkEventDeleted = "DELETED"
)

// LinkEvent is the audit trail of a link mutation. Snapshot keeps the link as
// it was so deletions stay traceable after the row is removed.
type LinkEvent struct {
	ID          int64     `json:"-"`
	EventID     string    `json:"event_id"`
	LinkNumber  string    `json:"link_number"`
	StatementID string    `json:"statement_id"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor"`
	At          time.Time `json:"at"`
	Snapshot    Link      `json:"snapshot"`
}

// CreditNoteOffset nets credit notes against a positive invoice without a
// bank line.
type CreditNoteOffset struct {
	ID               int64             `json:"-"`
	OffsetID         string            `json:"offset_id"`
	TargetInvoiceID  string            `json:"target_invoice_id"`
	CreditNoteIDs    []string          `json:"credit_note_ids"`
	Sum              decimal.Decimal   `json:"sum"`
	Balanced         bool              `json:"balanced"`
	Warning          string            `json:"warning,omitempty"`
	PreviousStatuses map[string]string `json:"previous_statuses"`
	Actor            string            `json:"actor"`
	CreatedAt        time.Time         `json:"created_at"`
}

const (
	RunStatusStarted    = "started"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// ReconciliationRun records one pass of the matcher over a statement.
type ReconciliationRun struct {
	ID          int64      `json:"-"`
	RunID       string     `json:"run_id"`
	StatementID string     `json:"statement_id"`
	Status      string     `json:"status"`
	Matched     int        `json:"matched"`
	Unmatched   int        `json:"unmatched"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	IsDryRun    bool       `json:"is_dry_run"`
	Actor       string     `json:"actor"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

type LineStatus string

const (
	LineStatusUnmatched LineStatus = "UNMATCHED"
	LineStatusSuggested LineStatus = "SUGGESTED"
	LineStatusLinked    LineStatus = "LINKED"
)

// Depth is how far a line is reconciled: no slot, one slot or both.
type Depth string

const (
	DepthNone    Depth = "NONE"
	DepthPartial Depth = "PARTIAL"
	DepthFull    Depth = "FULL"
)

// DepthOf computes the reconciliation depth from the links of one line.
func DepthOf(links []Link) Depth {
	slots := map[Slot]bool{}
	for _, l := range links {
		slots[l.Slot] = true
	}
	switch {
	case slots[SlotInvoice] && slots[SlotPartner]:
		return DepthFull
	case len(slots) > 0:
		return DepthPartial
	default:
		return DepthNone
	}
}

// MatchCandidate is one scored (family, entity) pair for a line. Never stored.
type MatchCandidate struct {
	LineID              string   `json:"line_id"`
	Family              Family   `json:"family"`
	EntityID            string   `json:"entity_id"`
	DisplayName         string   `json:"display_name"`
	TotalScore          int      `json:"total_score"`
	ContributingRuleIDs []string `json:"contributing_rule_ids"`
	BestPriority        int      `json:"best_priority"`
}

// LineOutcome is the per-line result of a batch.
type LineOutcome struct {
	LineID     string     `json:"line_id"`
	LineNumber int        `json:"line_number"`
	Status     LineStatus `json:"status"`
	Depth      Depth      `json:"depth"`
	Skipped    bool       `json:"skipped,omitempty"`
	Links      []Link     `json:"links,omitempty"`
	// Suggestions holds above-zero candidates when nothing was linked.
	Suggestions []MatchCandidate `json:"suggestions,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// BatchResult is the outcome of processing one statement.
type BatchResult struct {
	Run   ReconciliationRun `json:"run"`
	Lines []LineOutcome     `json:"lines"`
}

// LineState is the computed status of one line, never stored.
type LineState struct {
	Line   TransactionLine `json:"line"`
	Status LineStatus      `json:"status"`
	Depth  Depth           `json:"depth"`
	Links  []Link          `json:"links"`
}

// StatementState is the computed status of every line in a statement.
type StatementState struct {
	Statement Statement   `json:"statement"`
	Lines     []LineState `json:"lines"`
	Linked    int         `json:"linked"`
	Partial   int         `json:"partial"`
	Full      int         `json:"full"`
	Unmatched int         `json:"unmatched"`
}
