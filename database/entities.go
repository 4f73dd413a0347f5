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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	invoiceColumns      = `invoice_id, number, kind, status, total_ttc, client_name, issue_date, reconciliation_ref`
	subscriptionColumns = `subscription_id, partner_name, label, amount, next_due_date, active, last_paid_at`
	declarationColumns  = `declaration_id, organism, label, amount, due_date, active, last_paid_at`
	partnerColumns      = `partner_id, name, keywords, active`
)

// FindCandidates lists the matchable entities of a family. By default
// inactive records are left out, and for invoices so are drafts, cancelled
// invoices and invoices already settled by a link.
func (d Datasource) FindCandidates(ctx context.Context, family model.Family, filter model.CandidateFilter) ([]model.CandidateEntity, error) {
	ctx, span := otel.Tracer("Entities").Start(ctx, "Finding candidates")
	defer span.End()
	span.SetAttributes(attribute.String("family", string(family)))

	var (
		query string
		args  []interface{}
		scan  func(rowScanner) (model.CandidateEntity, error)
	)
	switch family {
	case model.FamilyInvoice:
		query = `SELECT ` + invoiceColumns + ` FROM recon.invoices i
			WHERE ($1 OR i.status NOT IN ('DRAFT', 'CANCELLED'))
			AND ($2 OR (i.status <> 'PAID' AND NOT EXISTS (
				SELECT 1 FROM recon.links l WHERE l.family = 'INVOICE' AND l.entity_id = i.invoice_id)))
			ORDER BY i.invoice_id`
		args = []interface{}{filter.IncludeInactive, filter.IncludeLinked}
		scan = func(row rowScanner) (model.CandidateEntity, error) {
			inv, err := scanInvoice(row)
			return inv.Candidate(), err
		}
	case model.FamilySubscription:
		query = `SELECT ` + subscriptionColumns + ` FROM recon.subscriptions
			WHERE ($1 OR active) ORDER BY subscription_id`
		args = []interface{}{filter.IncludeInactive}
		scan = func(row rowScanner) (model.CandidateEntity, error) {
			s, err := scanSubscription(row)
			return s.Candidate(), err
		}
	case model.FamilyChargeDeclaration:
		query = `SELECT ` + declarationColumns + ` FROM recon.charge_declarations
			WHERE ($1 OR active) ORDER BY declaration_id`
		args = []interface{}{filter.IncludeInactive}
		scan = func(row rowScanner) (model.CandidateEntity, error) {
			c, err := scanDeclaration(row)
			return c.Candidate(), err
		}
	case model.FamilyPartner:
		query = `SELECT ` + partnerColumns + ` FROM recon.partners
			WHERE ($1 OR active) ORDER BY partner_id`
		args = []interface{}{filter.IncludeInactive}
		scan = func(row rowScanner) (model.CandidateEntity, error) {
			p, err := scanPartner(row)
			return p.Candidate(), err
		}
	default:
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", family), nil)
	}

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, repoError(err, "failed to retrieve "+string(family)+" candidates")
	}
	defer rows.Close()

	candidates := []model.CandidateEntity{}
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, repoError(err, "failed to scan "+string(family)+" candidate")
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over candidates")
	}
	return candidates, nil
}

// GetCandidate resolves a single entity regardless of its status.
func (d Datasource) GetCandidate(ctx context.Context, family model.Family, id string) (*model.CandidateEntity, error) {
	ctx, span := otel.Tracer("Entities").Start(ctx, "Fetching candidate")
	defer span.End()

	var (
		candidate model.CandidateEntity
		err       error
	)
	switch family {
	case model.FamilyInvoice:
		var inv model.Invoice
		inv, err = scanInvoice(d.Conn.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM recon.invoices WHERE invoice_id = $1`, id))
		candidate = inv.Candidate()
	case model.FamilySubscription:
		var s model.Subscription
		s, err = scanSubscription(d.Conn.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM recon.subscriptions WHERE subscription_id = $1`, id))
		candidate = s.Candidate()
	case model.FamilyChargeDeclaration:
		var c model.ChargeDeclaration
		c, err = scanDeclaration(d.Conn.QueryRowContext(ctx, `SELECT `+declarationColumns+` FROM recon.charge_declarations WHERE declaration_id = $1`, id))
		candidate = c.Candidate()
	case model.FamilyPartner:
		var p model.Partner
		p, err = scanPartner(d.Conn.QueryRowContext(ctx, `SELECT `+partnerColumns+` FROM recon.partners WHERE partner_id = $1`, id))
		candidate = p.Candidate()
	default:
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", family), nil)
	}
	if err != nil {
		return nil, notFoundOr(err, string(family)+" "+id)
	}
	return &candidate, nil
}

// GetInvoices loads invoices by id. Missing ids are a NOT_FOUND error.
func (d Datasource) GetInvoices(ctx context.Context, ids []string) ([]model.Invoice, error) {
	ctx, span := otel.Tracer("Entities").Start(ctx, "Fetching invoices")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM recon.invoices WHERE invoice_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, repoError(err, "failed to retrieve invoices")
	}
	defer rows.Close()

	byID := make(map[string]model.Invoice, len(ids))
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, repoError(err, "failed to scan invoice")
		}
		byID[inv.InvoiceID] = inv
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over invoices")
	}

	invoices := make([]model.Invoice, 0, len(ids))
	for _, id := range ids {
		inv, ok := byID[id]
		if !ok {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("invoice %s not found", id), nil)
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func scanInvoice(row rowScanner) (model.Invoice, error) {
	var (
		inv       model.Invoice
		issueDate sql.NullTime
		ref       sql.NullString
	)
	err := row.Scan(&inv.InvoiceID, &inv.Number, &inv.Kind, &inv.Status, &inv.TotalTTC, &inv.ClientName, &issueDate, &ref)
	if err != nil {
		return model.Invoice{}, err
	}
	inv.IssueDate = timePtr(issueDate)
	inv.ReconciliationRef = ref.String
	return inv, nil
}

func scanSubscription(row rowScanner) (model.Subscription, error) {
	var (
		s          model.Subscription
		amount     decimal.NullDecimal
		nextDue    sql.NullTime
		lastPaidAt sql.NullTime
	)
	err := row.Scan(&s.SubscriptionID, &s.PartnerName, &s.Label, &amount, &nextDue, &s.Active, &lastPaidAt)
	if err != nil {
		return model.Subscription{}, err
	}
	s.Amount = decimalPtr(amount)
	s.NextDueDate = timePtr(nextDue)
	s.LastPaidAt = timePtr(lastPaidAt)
	return s, nil
}

func scanDeclaration(row rowScanner) (model.ChargeDeclaration, error) {
	var (
		c          model.ChargeDeclaration
		amount     decimal.NullDecimal
		due        sql.NullTime
		lastPaidAt sql.NullTime
	)
	err := row.Scan(&c.DeclarationID, &c.Organism, &c.Label, &amount, &due, &c.Active, &lastPaidAt)
	if err != nil {
		return model.ChargeDeclaration{}, err
	}
	c.Amount = decimalPtr(amount)
	c.DueDate = timePtr(due)
	c.LastPaidAt = timePtr(lastPaidAt)
	return c, nil
}

func scanPartner(row rowScanner) (model.Partner, error) {
	var (
		p        model.Partner
		keywords []byte
	)
	if err := row.Scan(&p.PartnerID, &p.Name, &keywords, &p.Active); err != nil {
		return model.Partner{}, err
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &p.Keywords); err != nil {
			return model.Partner{}, err
		}
	}
	return p, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
