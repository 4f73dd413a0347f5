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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoiceRowColumns = []string{"invoice_id", "number", "kind", "status", "total_ttc", "client_name", "issue_date", "reconciliation_ref"}

func TestFindCandidates_Invoices(t *testing.T) {
	ds, mock := newMockDatasource(t)
	issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM recon.invoices i").
		WithArgs(false, false).
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv_1", "F-001", "SALE", "VALIDATED", "120.00", "Acme", issued, nil).
			AddRow("inv_2", "F-002", "PURCHASE", "VALIDATED", "80.50", "Globex", nil, nil))

	candidates, err := ds.FindCandidates(context.Background(), model.FamilyInvoice, model.CandidateFilter{})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "inv_1", candidates[0].EntityID)
	assert.Equal(t, "Acme", candidates[0].KeywordCorpus)
	assert.Equal(t, model.DirectionCredit, candidates[0].Direction)
	require.NotNil(t, candidates[0].ReferenceDate)
	assert.True(t, candidates[0].ReferenceDate.Equal(issued))
	assert.Equal(t, "120", candidates[0].ReferenceAmount.String())

	assert.Equal(t, model.DirectionDebit, candidates[1].Direction)
	assert.Nil(t, candidates[1].ReferenceDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCandidates_SubscriptionsIncludeInactive(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("FROM recon.subscriptions").
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"subscription_id", "partner_name", "label", "amount", "next_due_date", "active", "last_paid_at"}).
			AddRow("sub_1", "MMA IARD", "Flotte auto", nil, nil, false, nil))

	candidates, err := ds.FindCandidates(context.Background(), model.FamilySubscription, model.CandidateFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Nil(t, candidates[0].ReferenceAmount)
	assert.Equal(t, model.EntityStatusInactive, candidates[0].Status)
	assert.Equal(t, "MMA IARD, Flotte auto", candidates[0].KeywordCorpus)
}

func TestFindCandidates_Partners(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("FROM recon.partners").
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"partner_id", "name", "keywords", "active"}).
			AddRow("ptn_1", "MMA", []byte(`["MMA IARD","MUTUELLES DU MANS"]`), true))

	candidates, err := ds.FindCandidates(context.Background(), model.FamilyPartner, model.CandidateFilter{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "MMA, MMA IARD, MUTUELLES DU MANS", candidates[0].KeywordCorpus)
}

func TestFindCandidates_ErrorIsNeverEmptySet(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("FROM recon.charge_declarations").WillReturnError(assert.AnError)

	candidates, err := ds.FindCandidates(context.Background(), model.FamilyChargeDeclaration, model.CandidateFilter{})
	assert.Nil(t, candidates)
	assert.True(t, apierror.Is(err, apierror.ErrRepository))
}

func TestFindCandidates_UnknownFamily(t *testing.T) {
	ds, _ := newMockDatasource(t)
	_, err := ds.FindCandidates(context.Background(), "PAYSLIP", model.CandidateFilter{})
	assert.True(t, apierror.Is(err, apierror.ErrValidation))
}

func TestGetCandidate_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM recon.partners WHERE partner_id = $1")).
		WithArgs("ptn_x").
		WillReturnRows(sqlmock.NewRows([]string{"partner_id", "name", "keywords", "active"}))

	_, err := ds.GetCandidate(context.Background(), model.FamilyPartner, "ptn_x")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestGetInvoices_PreservesOrder(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ids := []string{"inv_2", "inv_1"}

	mock.ExpectQuery("FROM recon.invoices WHERE invoice_id = ANY").
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv_1", "F-001", "SALE", "VALIDATED", "100.00", "Acme", nil, nil).
			AddRow("inv_2", "AV-001", "SALE", "VALIDATED", "-100.00", "Acme", nil, nil))

	invoices, err := ds.GetInvoices(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "inv_2", invoices[0].InvoiceID)
	assert.True(t, invoices[0].IsCreditNote())
}

func TestGetInvoices_Missing(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ids := []string{"inv_1", "inv_9"}

	mock.ExpectQuery("FROM recon.invoices").
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv_1", "F-001", "SALE", "VALIDATED", "100.00", "Acme", nil, nil))

	_, err := ds.GetInvoices(context.Background(), ids)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.Contains(t, err.Error(), "inv_9")
}
