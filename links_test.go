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
	"testing"

	"github.com/blnkfinance/recon/internal/apierror"
	redlock "github.com/blnkfinance/recon/internal/lock"
	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManualLink_RequiresActor(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	_, err := r.ManualLink(context.Background(), ManualLinkRequest{
		LineID: "line_1", Family: model.FamilyInvoice, EntityID: "inv_1",
	})
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
	ds.AssertNotCalled(t, "GetLine", mock.Anything, mock.Anything)
}

func TestManualLink_UnknownFamily(t *testing.T) {
	r, _, _ := newTestRecon(t)

	_, err := r.ManualLink(context.Background(), ManualLinkRequest{
		LineID: "line_1", Family: model.Family("PAYSLIP"), EntityID: "x", Actor: "alice",
	})
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
}

func TestManualLink_ScoresAndReplaces(t *testing.T) {
	r, ds, mr := newTestRecon(t)

	line := debitLine("line_1", 1, "85.20", "PRLV MMA IARD", testDay)
	sub := subscriptionCandidate("sub_mma", "MMA IARD", "85.20")
	ds.On("GetLine", mock.Anything, "line_1").Return(&line, nil)
	ds.On("GetCandidate", mock.Anything, model.FamilySubscription, "sub_mma").Return(&sub, nil)
	ds.On("ActiveRules", mock.Anything, model.RuleType("")).Return([]model.Rule{
		amountRule("rule_amount", 1, 45),
	}, nil)
	ds.On("CreateLink", mock.Anything, mock.MatchedBy(func(req model.LinkRequest) bool {
		return req.EntityID == "sub_mma" && req.Method == model.LinkMethodManual &&
			req.Score == 45 && req.Replace && req.Actor == "alice" && req.Line.LineID == "line_1"
	})).Return(&model.Link{LinkNumber: "lnk_1", EntityID: "sub_mma", Slot: model.SlotPartner}, nil)

	link, err := r.ManualLink(context.Background(), ManualLinkRequest{
		LineID: "line_1", Family: model.FamilySubscription, EntityID: "sub_mma", Replace: true, Actor: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "lnk_1", link.LinkNumber)
	assert.False(t, mr.Exists(redlock.EntityKey(string(model.FamilySubscription), "sub_mma")))
}

func TestManualLink_ScoringFailureStillLinks(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	line := creditLine("line_1", 1, "120.00", "VIR ACME", testDay)
	inv := invoiceCandidate("inv_1", "120.00", testDay)
	ds.On("GetLine", mock.Anything, "line_1").Return(&line, nil)
	ds.On("GetCandidate", mock.Anything, model.FamilyInvoice, "inv_1").Return(&inv, nil)
	ds.On("ActiveRules", mock.Anything, model.RuleType("")).
		Return(nil, apierror.NewAPIError(apierror.ErrRepository, "rules unavailable", nil))
	ds.On("CreateLink", mock.Anything, mock.MatchedBy(func(req model.LinkRequest) bool {
		return req.EntityID == "inv_1" && req.Score == 0
	})).Return(&model.Link{LinkNumber: "lnk_1"}, nil)

	_, err := r.ManualLink(context.Background(), ManualLinkRequest{
		LineID: "line_1", Family: model.FamilyInvoice, EntityID: "inv_1", Actor: "alice",
	})
	require.NoError(t, err)
}

func TestManualLink_SlotTaken(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	line := creditLine("line_1", 1, "120.00", "VIR ACME", testDay)
	inv := invoiceCandidate("inv_2", "120.00", testDay)
	ds.On("GetLine", mock.Anything, "line_1").Return(&line, nil)
	ds.On("GetCandidate", mock.Anything, model.FamilyInvoice, "inv_2").Return(&inv, nil)
	ds.On("ActiveRules", mock.Anything, model.RuleType("")).Return([]model.Rule{}, nil)
	ds.On("CreateLink", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrConflict, "slot INVOICE of line line_1 is already linked", nil))

	_, err := r.ManualLink(context.Background(), ManualLinkRequest{
		LineID: "line_1", Family: model.FamilyInvoice, EntityID: "inv_2", Actor: "alice",
	})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}

func TestUnlink(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	_, err := r.Unlink(context.Background(), "lnk_1", " ")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	ds.On("DeleteLink", mock.Anything, "lnk_1", "alice").Return(&model.Link{LinkNumber: "lnk_1"}, nil)
	link, err := r.Unlink(context.Background(), "lnk_1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "lnk_1", link.LinkNumber)
}

func TestLinksForEntity_UnknownFamily(t *testing.T) {
	r, ds, _ := newTestRecon(t)
	_, err := r.LinksForEntity(context.Background(), model.Family("NOPE"), "x")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
	ds.AssertNotCalled(t, "LinksForEntity", mock.Anything, mock.Anything, mock.Anything)
}

func testInvoice(id, total, status string) model.Invoice {
	return model.Invoice{
		InvoiceID: id,
		Number:    "F-" + id,
		Kind:      model.InvoiceKindSale,
		Status:    status,
		TotalTTC:  decimal.RequireFromString(total),
	}
}

func TestOffsetCreditNotes(t *testing.T) {
	tests := []struct {
		name        string
		creditNotes []string
		invoices    []model.Invoice
		wantCode    apierror.ErrorCode
		balanced    bool
		warning     string
	}{
		{
			name:        "balanced",
			creditNotes: []string{"cn_1"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "120.00", model.InvoiceStatusValidated),
				testInvoice("cn_1", "-120.00", model.InvoiceStatusValidated),
			},
			balanced: true,
		},
		{
			name:        "within a cent",
			creditNotes: []string{"cn_1", "cn_2"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "120.00", model.InvoiceStatusValidated),
				testInvoice("cn_1", "-100.00", model.InvoiceStatusValidated),
				testInvoice("cn_2", "-19.99", model.InvoiceStatusValidated),
			},
			balanced: true,
		},
		{
			name:        "residual",
			creditNotes: []string{"cn_1"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "120.00", model.InvoiceStatusValidated),
				testInvoice("cn_1", "-100.00", model.InvoiceStatusValidated),
			},
			warning: "credit notes leave a residual of 20.00 on invoice inv_t",
		},
		{
			name:        "paid credit note",
			creditNotes: []string{"cn_1"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "120.00", model.InvoiceStatusValidated),
				testInvoice("cn_1", "-120.00", model.InvoiceStatusPaid),
			},
			wantCode: apierror.ErrConflict,
		},
		{
			name:        "draft target",
			creditNotes: []string{"cn_1"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "120.00", model.InvoiceStatusDraft),
				testInvoice("cn_1", "-120.00", model.InvoiceStatusValidated),
			},
			wantCode: apierror.ErrConsistency,
		},
		{
			name:        "positive invoice as credit note",
			creditNotes: []string{"inv_2"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "120.00", model.InvoiceStatusValidated),
				testInvoice("inv_2", "50.00", model.InvoiceStatusValidated),
			},
			wantCode: apierror.ErrValidation,
		},
		{
			name:        "credit note as target",
			creditNotes: []string{"cn_1"},
			invoices: []model.Invoice{
				testInvoice("inv_t", "-10.00", model.InvoiceStatusValidated),
				testInvoice("cn_1", "-120.00", model.InvoiceStatusValidated),
			},
			wantCode: apierror.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ds, _ := newTestRecon(t)
			ids := append([]string{"inv_t"}, tt.creditNotes...)
			ds.On("GetInvoices", mock.Anything, ids).Return(tt.invoices, nil)
			ds.On("RecordOffset", mock.Anything, mock.AnythingOfType("*model.CreditNoteOffset")).Return(nil)

			offset, err := r.OffsetCreditNotes(context.Background(), "inv_t", tt.creditNotes, "alice")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apierror.CodeOf(err))
				ds.AssertNotCalled(t, "RecordOffset", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.balanced, offset.Balanced)
			assert.Equal(t, tt.warning, offset.Warning)
			assert.Equal(t, "alice", offset.Actor)
			ds.AssertCalled(t, "RecordOffset", mock.Anything, offset)
		})
	}
}

func TestOffsetCreditNotes_RequiresCreditNotes(t *testing.T) {
	r, ds, _ := newTestRecon(t)

	_, err := r.OffsetCreditNotes(context.Background(), "inv_t", nil, "alice")
	assert.True(t, apierror.Is(err, apierror.ErrConsistency))
	ds.AssertNotCalled(t, "GetInvoices", mock.Anything, mock.Anything)
}

func TestOffsetCreditNotes_Duplicates(t *testing.T) {
	r, _, _ := newTestRecon(t)

	_, err := r.OffsetCreditNotes(context.Background(), "inv_t", []string{"cn_1", "cn_1"}, "alice")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))

	_, err = r.OffsetCreditNotes(context.Background(), "inv_t", []string{"inv_t"}, "alice")
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
}
