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

package recon

import (
	"context"
	"fmt"
	"strings"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/matcher"
	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// ManualLinkRequest is an operator's decision to link a line to an entity.
type ManualLinkRequest struct {
	LineID   string
	Family   model.Family
	EntityID string
	// Replace overrides a link already holding the slot.
	Replace bool
	Actor   string
}

// ManualLink links a line to an entity chosen by an operator. The stored
// score is what the active rules give the pair, for the audit trail.
func (r *Recon) ManualLink(ctx context.Context, req ManualLinkRequest) (*model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Manual link")
	defer span.End()

	if !req.Family.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", req.Family), nil)
	}
	if strings.TrimSpace(req.Actor) == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "actor is required for manual links", nil)
	}

	line, err := r.datasource.GetLine(ctx, req.LineID)
	if err != nil {
		return nil, err
	}
	candidate, err := r.datasource.GetCandidate(ctx, req.Family, req.EntityID)
	if err != nil {
		return nil, err
	}

	return r.lockAndLink(ctx, model.LinkRequest{
		Line:     *line,
		Family:   req.Family,
		EntityID: candidate.EntityID,
		Method:   model.LinkMethodManual,
		Score:    r.scorePair(ctx, *line, *candidate),
		Actor:    req.Actor,
		Replace:  req.Replace,
	})
}

// scorePair is best effort: a manual link never fails because scoring did.
func (r *Recon) scorePair(ctx context.Context, line model.TransactionLine, candidate model.CandidateEntity) int {
	rules, err := r.ActiveRules(ctx)
	if err != nil {
		logrus.Warnf("scoring manual link without rules: %v", err)
		return 0
	}
	res, err := matcher.Match(line, rules, map[model.Family][]model.CandidateEntity{candidate.Family: {candidate}}, r.Thresholds())
	if err != nil {
		logrus.Warnf("scoring manual link failed: %v", err)
		return 0
	}
	if ranked := res.Ranked[candidate.Family]; len(ranked) > 0 {
		return ranked[0].TotalScore
	}
	return 0
}

// Unlink deletes a link and reverts the entity status it changed.
func (r *Recon) Unlink(ctx context.Context, linkNumber, actor string) (*model.Link, error) {
	ctx, span := otel.Tracer("Links").Start(ctx, "Unlink")
	defer span.End()

	if strings.TrimSpace(actor) == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "actor is required to unlink", nil)
	}
	return r.datasource.DeleteLink(ctx, linkNumber, actor)
}

func (r *Recon) GetLink(ctx context.Context, linkNumber string) (*model.Link, error) {
	return r.datasource.GetLink(ctx, linkNumber)
}

func (r *Recon) LinksForStatement(ctx context.Context, statementID string) ([]model.Link, error) {
	return r.datasource.LinksForStatement(ctx, statementID)
}

func (r *Recon) LinksForLine(ctx context.Context, lineID string) ([]model.Link, error) {
	return r.datasource.LinksForLine(ctx, lineID)
}

func (r *Recon) LinksForEntity(ctx context.Context, family model.Family, entityID string) ([]model.Link, error) {
	if !family.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", family), nil)
	}
	return r.datasource.LinksForEntity(ctx, family, entityID)
}

func (r *Recon) LinkEvents(ctx context.Context, statementID string) ([]model.LinkEvent, error) {
	return r.datasource.LinkEvents(ctx, statementID)
}

// OffsetCreditNotes settles a positive invoice against one or more credit
// notes without a bank line. The offset is recorded even when the sum does
// not net to zero; the residual is reported as a warning.
func (r *Recon) OffsetCreditNotes(ctx context.Context, targetInvoiceID string, creditNoteIDs []string, actor string) (*model.CreditNoteOffset, error) {
	ctx, span := otel.Tracer("Offsets").Start(ctx, "Offsetting credit notes")
	defer span.End()

	if len(creditNoteIDs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConsistency, "at least one credit note is required to offset an invoice", nil)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "actor is required for offsets", nil)
	}

	seen := map[string]bool{targetInvoiceID: true}
	for _, id := range creditNoteIDs {
		if seen[id] {
			return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("invoice %s appears more than once", id), nil)
		}
		seen[id] = true
	}

	invoices, err := r.datasource.GetInvoices(ctx, append([]string{targetInvoiceID}, creditNoteIDs...))
	if err != nil {
		return nil, err
	}

	target := invoices[0]
	if target.IsCreditNote() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("target %s is a credit note", target.InvoiceID), nil)
	}
	sum := target.TotalTTC
	for _, inv := range invoices {
		switch inv.Status {
		case model.InvoiceStatusPaid:
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("invoice %s is already paid", inv.InvoiceID), nil)
		case model.InvoiceStatusDraft, model.InvoiceStatusCancelled:
			return nil, apierror.NewAPIError(apierror.ErrConsistency,
				fmt.Sprintf("invoice %s is %s and cannot be offset", inv.InvoiceID, inv.Status), nil)
		}
		if inv.InvoiceID == target.InvoiceID {
			continue
		}
		if !inv.IsCreditNote() {
			return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%s is not a credit note", inv.InvoiceID), nil)
		}
		sum = sum.Add(inv.TotalTTC)
	}

	offset := &model.CreditNoteOffset{
		TargetInvoiceID: target.InvoiceID,
		CreditNoteIDs:   creditNoteIDs,
		Sum:             sum,
		Balanced:        model.IsBalanced(sum),
		Actor:           actor,
	}
	if !offset.Balanced {
		offset.Warning = residualWarning(target.InvoiceID, sum)
		logrus.WithField("invoice_id", target.InvoiceID).Warn(offset.Warning)
	}

	if err := r.datasource.RecordOffset(ctx, offset); err != nil {
		return nil, err
	}
	return offset, nil
}

func residualWarning(invoiceID string, sum decimal.Decimal) string {
	return fmt.Sprintf("credit notes leave a residual of %s on invoice %s", sum.StringFixed(2), invoiceID)
}

func (r *Recon) GetOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error) {
	return r.datasource.GetOffset(ctx, id)
}

// DeleteOffset removes an offset and restores the statuses it replaced.
func (r *Recon) DeleteOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error) {
	return r.datasource.DeleteOffset(ctx, id)
}
