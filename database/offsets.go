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
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

const offsetColumns = `offset_id, target_invoice_id, credit_note_ids, sum, balanced, warning, previous_statuses, actor, created_at`

// RecordOffset stores a credit-note offset and marks the target invoice and
// every credit note paid, remembering their previous statuses. Each invoice
// is checked again under its row lock, so a concurrent payment turns into a
// conflict instead of being overwritten.
func (d Datasource) RecordOffset(ctx context.Context, offset *model.CreditNoteOffset) error {
	ctx, span := otel.Tracer("Offsets").Start(ctx, "Saving credit note offset")
	defer span.End()

	if offset.OffsetID == "" {
		offset.OffsetID = model.GenerateUUIDWithSuffix("off")
	}
	offset.CreatedAt = time.Now().UTC()
	offset.PreviousStatuses = make(map[string]string)

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return repoError(err, "failed to begin transaction")
	}

	for i, id := range offsetInvoiceIDs(offset) {
		var (
			status string
			total  decimal.Decimal
		)
		err := tx.QueryRowContext(ctx, `
			SELECT status, total_ttc FROM recon.invoices WHERE invoice_id = $1 FOR UPDATE
		`, id).Scan(&status, &total)
		if err != nil {
			return rollback(tx, notFoundOr(err, "invoice "+id))
		}
		if err := checkOffsetInvoice(id, status, total, i == 0); err != nil {
			return rollback(tx, err)
		}
		offset.PreviousStatuses[id] = status

		_, err = tx.ExecContext(ctx, `
			UPDATE recon.invoices SET status = $2, reconciliation_ref = $3 WHERE invoice_id = $1
		`, id, model.InvoiceStatusPaid, offset.OffsetID)
		if err != nil {
			return rollback(tx, repoError(err, "failed to mark invoice paid"))
		}
	}

	creditNotes, err := json.Marshal(offset.CreditNoteIDs)
	if err != nil {
		return rollback(tx, apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode credit notes", err))
	}
	previous, err := json.Marshal(offset.PreviousStatuses)
	if err != nil {
		return rollback(tx, apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode previous statuses", err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recon.credit_note_offsets (`+offsetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, offset.OffsetID, offset.TargetInvoiceID, creditNotes, offset.Sum, offset.Balanced,
		offset.Warning, previous, offset.Actor, offset.CreatedAt)
	if err != nil {
		return rollback(tx, repoError(err, "failed to record credit note offset"))
	}

	if err := tx.Commit(); err != nil {
		return repoError(err, "failed to commit credit note offset")
	}
	return nil
}

func (d Datasource) GetOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error) {
	ctx, span := otel.Tracer("Offsets").Start(ctx, "Fetching credit note offset")
	defer span.End()

	offset, err := scanOffset(d.Conn.QueryRowContext(ctx, `
		SELECT `+offsetColumns+` FROM recon.credit_note_offsets WHERE offset_id = $1
	`, id))
	if err != nil {
		return nil, notFoundOr(err, "credit note offset")
	}
	return &offset, nil
}

// DeleteOffset removes an offset and restores the statuses it replaced on
// invoices still carrying its reference.
func (d Datasource) DeleteOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error) {
	ctx, span := otel.Tracer("Offsets").Start(ctx, "Deleting credit note offset")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, repoError(err, "failed to begin transaction")
	}

	offset, err := scanOffset(tx.QueryRowContext(ctx, `
		SELECT `+offsetColumns+` FROM recon.credit_note_offsets WHERE offset_id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return nil, rollback(tx, notFoundOr(err, "credit note offset"))
	}

	for _, invoiceID := range offsetInvoiceIDs(&offset) {
		status, ok := offset.PreviousStatuses[invoiceID]
		if !ok {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE recon.invoices SET status = $2, reconciliation_ref = NULL
			WHERE invoice_id = $1 AND reconciliation_ref = $3
		`, invoiceID, status, offset.OffsetID)
		if err != nil {
			return nil, rollback(tx, repoError(err, "failed to restore invoice status"))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recon.credit_note_offsets WHERE offset_id = $1`, id); err != nil {
		return nil, rollback(tx, repoError(err, "failed to delete credit note offset"))
	}

	if err := tx.Commit(); err != nil {
		return nil, repoError(err, "failed to commit offset deletion")
	}
	return &offset, nil
}

// checkOffsetInvoice validates a locked invoice for an offset. The target
// must be a positive invoice and every other member a credit note.
func checkOffsetInvoice(id, status string, total decimal.Decimal, target bool) error {
	switch status {
	case model.InvoiceStatusPaid:
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("invoice %s is already paid", id), nil)
	case model.InvoiceStatusDraft, model.InvoiceStatusCancelled:
		return apierror.NewAPIError(apierror.ErrConsistency,
			fmt.Sprintf("invoice %s is %s and cannot be offset", id, status), nil)
	}
	if target && total.IsNegative() {
		return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("target %s is a credit note", id), nil)
	}
	if !target && !total.IsNegative() {
		return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%s is not a credit note", id), nil)
	}
	return nil
}

// offsetInvoiceIDs lists the target first, then the credit notes.
func offsetInvoiceIDs(offset *model.CreditNoteOffset) []string {
	return append([]string{offset.TargetInvoiceID}, offset.CreditNoteIDs...)
}

func scanOffset(row rowScanner) (model.CreditNoteOffset, error) {
	var (
		offset      model.CreditNoteOffset
		creditNotes []byte
		previous    []byte
		warning     sql.NullString
	)
	err := row.Scan(&offset.OffsetID, &offset.TargetInvoiceID, &creditNotes, &offset.Sum, &offset.Balanced,
		&warning, &previous, &offset.Actor, &offset.CreatedAt)
	if err != nil {
		return model.CreditNoteOffset{}, err
	}
	offset.Warning = warning.String
	if err := json.Unmarshal(creditNotes, &offset.CreditNoteIDs); err != nil {
		return model.CreditNoteOffset{}, err
	}
	if err := json.Unmarshal(previous, &offset.PreviousStatuses); err != nil {
		return model.CreditNoteOffset{}, err
	}
	return offset, nil
}
