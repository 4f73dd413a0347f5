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

	"github.com/blnkfinance/recon/model"
)

// IDataSource groups every persistence operation of the service.
type IDataSource interface {
	entity    // read-only projections of the four matchable families
	rule      // matching rule storage
	statement // bank statements and their lines
	link      // link ledger and audit trail
	offset    // credit-note offsets
	run       // reconciliation run records
}

type entity interface {
	FindCandidates(ctx context.Context, family model.Family, filter model.CandidateFilter) ([]model.CandidateEntity, error) // Lists matchable entities of a family
	GetCandidate(ctx context.Context, family model.Family, id string) (*model.CandidateEntity, error)                       // Resolves one entity for manual linking
	GetInvoices(ctx context.Context, ids []string) ([]model.Invoice, error)                                                // Loads invoices by id, in the order given
}

type rule interface {
	CreateRule(ctx context.Context, rule *model.Rule) error                               // Stores a new rule
	GetRule(ctx context.Context, id string) (*model.Rule, error)                          // Retrieves a rule by ID
	ListRules(ctx context.Context, activeOnly bool) ([]model.Rule, error)                 // Lists rules ordered by priority then id
	ActiveRules(ctx context.Context, ruleType model.RuleType) ([]model.Rule, error)       // Lists active rules, optionally of one type
	UpdateRule(ctx context.Context, rule *model.Rule) error                               // Replaces a rule's definition
	SetRuleActive(ctx context.Context, id string, active bool) (*model.Rule, error)       // Enables or disables a rule
}

type statement interface {
	RecordStatement(ctx context.Context, stmt *model.Statement, lines []model.TransactionLine) error // Stores a statement and its lines atomically
	GetStatement(ctx context.Context, id string) (*model.Statement, error)                           // Retrieves a statement by ID
	GetStatementLines(ctx context.Context, statementID string) ([]model.TransactionLine, error)      // Lists lines ordered by line number
	GetLine(ctx context.Context, lineID string) (*model.TransactionLine, error)                      // Retrieves one line
}

type link interface {
	CreateLink(ctx context.Context, req model.LinkRequest) (*model.Link, error)                    // Persists a link, mutates the entity and audits, in one transaction
	DeleteLink(ctx context.Context, linkNumber, actor string) (*model.Link, error)                 // Removes a link and reverts the entity
	GetLink(ctx context.Context, linkNumber string) (*model.Link, error)                           // Retrieves a link by number
	LinksForStatement(ctx context.Context, statementID string) ([]model.Link, error)               // Lists links of a statement
	LinksForLine(ctx context.Context, lineID string) ([]model.Link, error)                         // Lists links of a line
	LinksForEntity(ctx context.Context, family model.Family, entityID string) ([]model.Link, error) // Lists links of an entity
	LinkEvents(ctx context.Context, statementID string) ([]model.LinkEvent, error)                 // Lists the audit trail of a statement
}

type offset interface {
	RecordOffset(ctx context.Context, offset *model.CreditNoteOffset) error        // Stores an offset and marks its invoices paid
	GetOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error)      // Retrieves an offset
	DeleteOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error)   // Removes an offset and restores invoice statuses
}

type run interface {
	RecordRun(ctx context.Context, run *model.ReconciliationRun) error                          // Stores a new run
	UpdateRun(ctx context.Context, run *model.ReconciliationRun) error                          // Updates status and counters
	GetRun(ctx context.Context, id string) (*model.ReconciliationRun, error)                    // Retrieves a run
	RunsForStatement(ctx context.Context, statementID string) ([]model.ReconciliationRun, error) // Lists runs of a statement, newest first
}
