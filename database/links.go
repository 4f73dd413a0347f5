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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const linkColumns = `link_number, line_id, statement_id, family, slot, entity_id, method, score, previous_status, actor, created_at`

// CreateLink persists a link between a line and an entity. The slot check,
// the entity status mutation, the link row and its audit event form one
// transaction. An occupied slot is a conflict unless req.Replace is set, in
// which case the old link is reverted and audited first. Re-linking the same
// entity into the same slot returns the existing link unchanged.
func (d Datasource) CreateLink(ctx context.Context, req model.LinkRequest) (*model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Creating link")
	defer span.End()
	span.SetAttributes(
		attribute.String("line.id", req.Line.LineID),
		attribute.String("family", string(req.Family)),
		attribute.String("entity.id", req.EntityID),
	)

	if !req.Family.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", req.Family), nil)
	}
	slot := req.Family.Slot()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, repoError(err, "failed to begin transaction")
	}

	existing, err := scanLink(tx.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM recon.links
		WHERE line_id = $1 AND slot = $2
		FOR UPDATE
	`, req.Line.LineID, slot))
	switch {
	case err == nil:
		if existing.Family == req.Family && existing.EntityID == req.EntityID {
			return &existing, rollback(tx, nil)
		}
		if !req.Replace {
			return nil, rollback(tx, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("line %s already holds %s link %s", req.Line.LineID, slot, existing.LinkNumber), nil))
		}
		if err := d.deleteLinkTx(ctx, tx, existing, req.Actor); err != nil {
			return nil, rollback(tx, err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, rollback(tx, repoError(err, "failed to check link slot"))
	}

	if req.Family == model.FamilyInvoice {
		var claimedBy string
		err := tx.QueryRowContext(ctx, `
			SELECT line_id FROM recon.links
			WHERE family = 'INVOICE' AND entity_id = $1
			FOR UPDATE
		`, req.EntityID).Scan(&claimedBy)
		if err == nil {
			return nil, rollback(tx, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("invoice %s is already linked to line %s", req.EntityID, claimedBy), nil))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, rollback(tx, repoError(err, "failed to check invoice links"))
		}
	}

	link := model.Link{
		LinkNumber:  model.GenerateUUIDWithSuffix("lnk"),
		LineID:      req.Line.LineID,
		StatementID: req.Line.StatementID,
		Family:      req.Family,
		Slot:        slot,
		EntityID:    req.EntityID,
		Method:      req.Method,
		Score:       model.ClampScore(req.Score),
		Actor:       req.Actor,
		CreatedAt:   time.Now().UTC(),
	}

	link.PreviousStatus, err = markEntity(ctx, tx, link, req.Line)
	if err != nil {
		return nil, rollback(tx, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recon.links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, link.LinkNumber, link.LineID, link.StatementID, link.Family, link.Slot, link.EntityID,
		link.Method, link.Score, link.PreviousStatus, link.Actor, link.CreatedAt)
	if err != nil {
		return nil, rollback(tx, repoError(err, "failed to record link"))
	}

	if err := recordLinkEvent(ctx, tx, model.LinkEventCreated, link, req.Actor); err != nil {
		return nil, rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, repoError(err, "failed to commit link")
	}
	return &link, nil
}

// DeleteLink removes a link, restores the entity to its pre-link value and
// audits the deletion.
func (d Datasource) DeleteLink(ctx context.Context, linkNumber, actor string) (*model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Deleting link")
	defer span.End()
	span.SetAttributes(attribute.String("link.number", linkNumber))

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, repoError(err, "failed to begin transaction")
	}

	link, err := scanLink(tx.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM recon.links WHERE link_number = $1 FOR UPDATE
	`, linkNumber))
	if err != nil {
		return nil, rollback(tx, notFoundOr(err, "link "+linkNumber))
	}

	if err := d.deleteLinkTx(ctx, tx, link, actor); err != nil {
		return nil, rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, repoError(err, "failed to commit unlink")
	}
	return &link, nil
}

func (d Datasource) deleteLinkTx(ctx context.Context, tx *sql.Tx, link model.Link, actor string) error {
	if err := revertEntity(ctx, tx, link); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recon.links WHERE link_number = $1`, link.LinkNumber); err != nil {
		return repoError(err, "failed to delete link")
	}
	return recordLinkEvent(ctx, tx, model.LinkEventDeleted, link, actor)
}

// markEntity applies the status change a link implies and returns the value
// to restore on unlink.
func markEntity(ctx context.Context, tx *sql.Tx, link model.Link, line model.TransactionLine) (string, error) {
	switch link.Family {
	case model.FamilyInvoice:
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM recon.invoices WHERE invoice_id = $1 FOR UPDATE
		`, link.EntityID).Scan(&status)
		if err != nil {
			return "", notFoundOr(err, "invoice "+link.EntityID)
		}
		switch status {
		case model.InvoiceStatusDraft, model.InvoiceStatusCancelled:
			return "", apierror.NewAPIError(apierror.ErrConsistency,
				fmt.Sprintf("invoice %s is %s and cannot be reconciled", link.EntityID, status), nil)
		case model.InvoiceStatusPaid:
			return "", apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("invoice %s is already paid", link.EntityID), nil)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE recon.invoices SET status = $2, reconciliation_ref = $3 WHERE invoice_id = $1
		`, link.EntityID, model.InvoiceStatusPaid, link.LinkNumber)
		if err != nil {
			return "", repoError(err, "failed to mark invoice paid")
		}
		return status, nil

	case model.FamilySubscription, model.FamilyChargeDeclaration:
		table, key := paidAtTable(link.Family)
		var lastPaidAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT last_paid_at FROM recon.`+table+` WHERE `+key+` = $1 FOR UPDATE`,
			link.EntityID).Scan(&lastPaidAt)
		if err != nil {
			return "", notFoundOr(err, string(link.Family)+" "+link.EntityID)
		}
		baseline, err := paidAtBaseline(ctx, tx, link, lastPaidAt)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE recon.`+table+` SET last_paid_at = GREATEST(last_paid_at, $2) WHERE `+key+` = $1`,
			link.EntityID, line.Date)
		if err != nil {
			return "", repoError(err, "failed to record payment date")
		}
		return baseline, nil

	case model.FamilyPartner:
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT TRUE FROM recon.partners WHERE partner_id = $1
		`, link.EntityID).Scan(&exists)
		if err != nil {
			return "", notFoundOr(err, "partner "+link.EntityID)
		}
		return "", nil
	}
	return "", apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", link.Family), nil)
}

// revertEntity undoes markEntity. Invoices without a recorded previous
// status fall back to VALIDATED. Repeatable entities get the payment date
// their remaining links imply.
func revertEntity(ctx context.Context, tx *sql.Tx, link model.Link) error {
	switch link.Family {
	case model.FamilyInvoice:
		status := link.PreviousStatus
		if status == "" {
			status = model.InvoiceStatusValidated
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE recon.invoices SET status = $2, reconciliation_ref = NULL WHERE invoice_id = $1
		`, link.EntityID, status)
		if err != nil {
			return repoError(err, "failed to revert invoice status")
		}
	case model.FamilySubscription, model.FamilyChargeDeclaration:
		table, key := paidAtTable(link.Family)
		restored, err := remainingPaidAt(ctx, tx, link)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE recon.`+table+` SET last_paid_at = $2 WHERE `+key+` = $1`,
			link.EntityID, restored)
		if err != nil {
			return repoError(err, "failed to revert payment date")
		}
	}
	return nil
}

// paidAtBaseline returns the payment date the entity had before its first
// live link. Every link of a repeatable entity stores the same baseline, so
// links can be removed in any order.
func paidAtBaseline(ctx context.Context, tx *sql.Tx, link model.Link, current sql.NullTime) (string, error) {
	var baseline sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT previous_status FROM recon.links
		WHERE family = $1 AND entity_id = $2
		ORDER BY created_at ASC, link_number ASC
		LIMIT 1
	`, link.Family, link.EntityID).Scan(&baseline)
	switch {
	case err == nil:
		return baseline.String, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", repoError(err, "failed to read payment baseline")
	}
	if !current.Valid {
		return "", nil
	}
	return current.Time.UTC().Format(time.RFC3339), nil
}

// remainingPaidAt is the payment date once link is gone: the latest line
// date among the entity's other links, never earlier than the baseline.
func remainingPaidAt(ctx context.Context, tx *sql.Tx, link model.Link) (sql.NullTime, error) {
	var latest sql.NullTime
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(tl.date) FROM recon.links l
		JOIN recon.transaction_lines tl ON tl.line_id = l.line_id
		WHERE l.family = $1 AND l.entity_id = $2 AND l.link_number <> $3
	`, link.Family, link.EntityID, link.LinkNumber).Scan(&latest)
	if err != nil {
		return sql.NullTime{}, repoError(err, "failed to read remaining payment dates")
	}

	if link.PreviousStatus == "" {
		return latest, nil
	}
	baseline, err := time.Parse(time.RFC3339, link.PreviousStatus)
	if err != nil {
		return sql.NullTime{}, apierror.NewAPIError(apierror.ErrConsistency, "stored payment date is unreadable", err)
	}
	if latest.Valid && latest.Time.After(baseline) {
		return latest, nil
	}
	return sql.NullTime{Time: baseline, Valid: true}, nil
}

func paidAtTable(family model.Family) (table, key string) {
	if family == model.FamilySubscription {
		return "subscriptions", "subscription_id"
	}
	return "charge_declarations", "declaration_id"
}

func recordLinkEvent(ctx context.Context, tx *sql.Tx, action string, link model.Link, actor string) error {
	snapshot, err := json.Marshal(link)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode link snapshot", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO recon.link_events (event_id, link_number, statement_id, action, actor, at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, model.GenerateUUIDWithSuffix("evt"), link.LinkNumber, link.StatementID, action, actor, time.Now().UTC(), snapshot)
	if err != nil {
		return repoError(err, "failed to record link event")
	}
	return nil
}

func (d Datasource) GetLink(ctx context.Context, linkNumber string) (*model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Fetching link")
	defer span.End()

	link, err := scanLink(d.Conn.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM recon.links WHERE link_number = $1
	`, linkNumber))
	if err != nil {
		return nil, notFoundOr(err, "link "+linkNumber)
	}
	return &link, nil
}

func (d Datasource) LinksForStatement(ctx context.Context, statementID string) ([]model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Fetching links by statement")
	defer span.End()

	return d.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM recon.links
		WHERE statement_id = $1
		ORDER BY created_at ASC, link_number ASC
	`, statementID)
}

func (d Datasource) LinksForLine(ctx context.Context, lineID string) ([]model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Fetching links by line")
	defer span.End()

	return d.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM recon.links
		WHERE line_id = $1
		ORDER BY slot ASC
	`, lineID)
}

func (d Datasource) LinksForEntity(ctx context.Context, family model.Family, entityID string) ([]model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Fetching links by entity")
	defer span.End()

	return d.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM recon.links
		WHERE family = $1 AND entity_id = $2
		ORDER BY created_at ASC, link_number ASC
	`, family, entityID)
}

func (d Datasource) queryLinks(ctx context.Context, query string, args ...interface{}) ([]model.Link, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repoError(err, "failed to retrieve links")
	}
	defer rows.Close()

	links := []model.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, repoError(err, "failed to scan link")
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over links")
	}
	return links, nil
}

// LinkEvents returns the audit trail of a statement, oldest first.
func (d Datasource) LinkEvents(ctx context.Context, statementID string) ([]model.LinkEvent, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Fetching link events")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, link_number, statement_id, action, actor, at, snapshot
		FROM recon.link_events
		WHERE statement_id = $1
		ORDER BY at ASC, id ASC
	`, statementID)
	if err != nil {
		return nil, repoError(err, "failed to retrieve link events")
	}
	defer rows.Close()

	events := []model.LinkEvent{}
	for rows.Next() {
		var (
			event    model.LinkEvent
			snapshot []byte
		)
		err := rows.Scan(&event.EventID, &event.LinkNumber, &event.StatementID, &event.Action, &event.Actor, &event.At, &snapshot)
		if err != nil {
			return nil, repoError(err, "failed to scan link event")
		}
		if err := json.Unmarshal(snapshot, &event.Snapshot); err != nil {
			return nil, repoError(err, "failed to decode link snapshot")
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over link events")
	}
	return events, nil
}

func scanLink(row rowScanner) (model.Link, error) {
	var (
		link     model.Link
		previous sql.NullString
	)
	err := row.Scan(&link.LinkNumber, &link.LineID, &link.StatementID, &link.Family, &link.Slot, &link.EntityID,
		&link.Method, &link.Score, &previous, &link.Actor, &link.CreatedAt)
	if err != nil {
		return model.Link{}, err
	}
	link.PreviousStatus = previous.String
	return link, nil
}
