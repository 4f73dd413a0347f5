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
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ruleRowColumns = []string{"rule_id", "name", "description", "type", "active", "priority", "score_contribution", "condition", "created_at", "updated_at"}

func TestCreateRule(t *testing.T) {
	ds, mock := newMockDatasource(t)
	tolerance := decimal.RequireFromString("0.01")
	rule := &model.Rule{
		Name: "amount", Type: model.RuleAmount, Active: true, Priority: 1, ScoreContribution: 45,
		Condition: &model.AmountCondition{Tolerance: &tolerance},
	}

	mock.ExpectExec("INSERT INTO recon.rules").
		WithArgs(sqlmock.AnyArg(), "amount", "", model.RuleAmount, true, 1, 45, []byte(`{"tolerance":"0.01"}`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.CreateRule(context.Background(), rule))
	assert.Contains(t, rule.RuleID, "rule_")
	assert.False(t, rule.CreatedAt.IsZero())
}

func TestCreateRule_Duplicate(t *testing.T) {
	ds, mock := newMockDatasource(t)
	rule := &model.Rule{RuleID: "rule_1", Name: "date", Type: model.RuleDate, Condition: &model.DateCondition{}}

	mock.ExpectExec("INSERT INTO recon.rules").WillReturnError(&pq.Error{Code: "23505"})

	err := ds.CreateRule(context.Background(), rule)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}

func TestActiveRules_DecodesConditions(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE active AND ($1 = '' OR type = $1)")).
		WithArgs("").
		WillReturnRows(sqlmock.NewRows(ruleRowColumns).
			AddRow("rule_1", "amount", nil, "AMOUNT", true, 1, 45, []byte(`{"tolerance":"0.5"}`), now, now).
			AddRow("rule_2", "mma", "subscription", "SUBSCRIPTION", true, 2, 60, []byte(`{"keywords":["MMA IARD"]}`), now, now))

	rules, err := ds.ActiveRules(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	amount, ok := rules[0].Condition.(*model.AmountCondition)
	require.True(t, ok)
	assert.Equal(t, "0.5", amount.Tolerance.String())

	sub, ok := rules[1].Condition.(*model.SubscriptionCondition)
	require.True(t, ok)
	assert.Equal(t, []string{"MMA IARD"}, sub.Keywords)
	assert.Equal(t, "subscription", rules[1].Description)
}

func TestActiveRules_ClampsStoredScores(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("FROM recon.rules").
		WithArgs("").
		WillReturnRows(sqlmock.NewRows(ruleRowColumns).
			AddRow("rule_1", "amount", nil, "AMOUNT", true, 1, 250, []byte(`{"tolerance":"0.5"}`), now, now).
			AddRow("rule_2", "date", nil, "DATE", true, 2, -5, []byte(`{"window_days":3}`), now, now))

	rules, err := ds.ActiveRules(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.MaxScore, rules[0].ScoreContribution)
	assert.Equal(t, model.MinScore, rules[1].ScoreContribution)
}

func TestActiveRules_CorruptCondition(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery("FROM recon.rules").
		WithArgs("DATE").
		WillReturnRows(sqlmock.NewRows(ruleRowColumns).
			AddRow("rule_1", "date", nil, "DATE", true, 1, 10, []byte(`{"window":3}`), now, now))

	_, err := ds.ActiveRules(context.Background(), model.RuleDate)
	assert.True(t, apierror.Is(err, apierror.ErrRepository))
}

func TestGetRule_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("FROM recon.rules WHERE rule_id").
		WithArgs("rule_x").
		WillReturnRows(sqlmock.NewRows(ruleRowColumns))

	_, err := ds.GetRule(context.Background(), "rule_x")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestUpdateRule_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)
	rule := &model.Rule{RuleID: "rule_x", Name: "date", Type: model.RuleDate, Condition: &model.DateCondition{}}

	mock.ExpectExec("UPDATE recon.rules").WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateRule(context.Background(), rule)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestSetRuleActive(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE recon.rules SET active = $2")).
		WithArgs("rule_1", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(ruleRowColumns).
			AddRow("rule_1", "date", nil, "DATE", false, 1, 10, []byte(`{}`), now, now))

	rule, err := ds.SetRuleActive(context.Background(), "rule_1", false)
	require.NoError(t, err)
	assert.False(t, rule.Active)
}

func TestRecordStatement(t *testing.T) {
	ds, mock := newMockDatasource(t)
	stmt := &model.Statement{AccountLabel: "BNP 0001", FileName: "march.csv"}
	lines := []model.TransactionLine{
		{LineNumber: 1, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Label: "VIR ACME", Credit: decimal.NewFromInt(120)},
		{LineNumber: 2, Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Label: "PRLV MMA IARD", Debit: decimal.NewFromInt(80)},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO recon.statements").
		WithArgs(sqlmock.AnyArg(), "BNP 0001", "march.csv", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO recon.transaction_lines").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO recon.transaction_lines").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, ds.RecordStatement(context.Background(), stmt, lines))
	assert.Contains(t, stmt.StatementID, "stmt_")
	assert.Equal(t, stmt.StatementID, lines[1].StatementID)
	assert.NotEmpty(t, lines[0].LineID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStatement_RollsBackOnLineFailure(t *testing.T) {
	ds, mock := newMockDatasource(t)
	stmt := &model.Statement{StatementID: "stmt_1"}
	lines := []model.TransactionLine{{LineNumber: 1, Date: time.Now(), Credit: decimal.NewFromInt(1)}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO recon.statements").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO recon.transaction_lines").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := ds.RecordStatement(context.Background(), stmt, lines)
	assert.True(t, apierror.Is(err, apierror.ErrRepository))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStatementLines(t *testing.T) {
	ds, mock := newMockDatasource(t)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM recon.transaction_lines").
		WithArgs("stmt_1").
		WillReturnRows(sqlmock.NewRows([]string{"line_id", "statement_id", "line_number", "date", "label", "debit", "credit"}).
			AddRow("line_1", "stmt_1", 1, date, "VIR ACME", "0", "120.00").
			AddRow("line_2", "stmt_1", 2, date, "PRLV MMA", "80.00", "0"))

	lines, err := ds.GetStatementLines(context.Background(), "stmt_1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, model.DirectionCredit, lines[0].Direction())
	assert.True(t, lines[1].Amount().Equal(decimal.NewFromInt(-80)))
}

func TestRecordOffset(t *testing.T) {
	ds, mock := newMockDatasource(t)
	offset := &model.CreditNoteOffset{
		TargetInvoiceID: "inv_1",
		CreditNoteIDs:   []string{"av_1"},
		Sum:             decimal.Zero,
		Balanced:        true,
		Actor:           "alice",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM recon.invoices")).
		WithArgs("inv_1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "total_ttc"}).AddRow("VALIDATED", "100.00"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recon.invoices SET status = $2")).
		WithArgs("inv_1", model.InvoiceStatusPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM recon.invoices")).
		WithArgs("av_1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "total_ttc"}).AddRow("VALIDATED", "-100.00"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recon.invoices SET status = $2")).
		WithArgs("av_1", model.InvoiceStatusPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO recon.credit_note_offsets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, ds.RecordOffset(context.Background(), offset))
	assert.Equal(t, map[string]string{"inv_1": "VALIDATED", "av_1": "VALIDATED"}, offset.PreviousStatuses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOffset_RechecksLockedInvoices(t *testing.T) {
	tests := []struct {
		name      string
		target    []driver.Value
		credit    []driver.Value
		wantCode  apierror.ErrorCode
		wantMatch string
	}{
		{
			name:      "target paid meanwhile",
			target:    []driver.Value{"PAID", "100.00"},
			wantCode:  apierror.ErrConflict,
			wantMatch: "inv_1 is already paid",
		},
		{
			name:      "target cancelled meanwhile",
			target:    []driver.Value{"CANCELLED", "100.00"},
			wantCode:  apierror.ErrConsistency,
			wantMatch: "inv_1 is CANCELLED",
		},
		{
			name:      "credit note paid meanwhile",
			target:    []driver.Value{"VALIDATED", "100.00"},
			credit:    []driver.Value{"PAID", "-100.00"},
			wantCode:  apierror.ErrConflict,
			wantMatch: "av_1 is already paid",
		},
		{
			name:      "credit note edited to a positive total",
			target:    []driver.Value{"VALIDATED", "100.00"},
			credit:    []driver.Value{"VALIDATED", "40.00"},
			wantCode:  apierror.ErrValidation,
			wantMatch: "av_1 is not a credit note",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, mock := newMockDatasource(t)
			offset := &model.CreditNoteOffset{TargetInvoiceID: "inv_1", CreditNoteIDs: []string{"av_1"}, Actor: "alice"}

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT status, total_ttc FROM recon.invoices")).
				WithArgs("inv_1").
				WillReturnRows(sqlmock.NewRows([]string{"status", "total_ttc"}).AddRow(tt.target...))
			if tt.credit != nil {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE recon.invoices SET status = $2")).
					WithArgs("inv_1", model.InvoiceStatusPaid, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(regexp.QuoteMeta("SELECT status, total_ttc FROM recon.invoices")).
					WithArgs("av_1").
					WillReturnRows(sqlmock.NewRows([]string{"status", "total_ttc"}).AddRow(tt.credit...))
			}
			mock.ExpectRollback()

			err := ds.RecordOffset(context.Background(), offset)
			require.Error(t, err)
			assert.True(t, apierror.Is(err, tt.wantCode))
			assert.Contains(t, err.Error(), tt.wantMatch)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteOffset_RestoresStatuses(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM recon.credit_note_offsets").
		WithArgs("off_1").
		WillReturnRows(sqlmock.NewRows([]string{"offset_id", "target_invoice_id", "credit_note_ids", "sum", "balanced", "warning", "previous_statuses", "actor", "created_at"}).
			AddRow("off_1", "inv_1", []byte(`["av_1"]`), "0", true, nil, []byte(`{"inv_1":"VALIDATED","av_1":"VALIDATED"}`), "alice", now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recon.invoices SET status = $2, reconciliation_ref = NULL")).
		WithArgs("inv_1", "VALIDATED", "off_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recon.invoices SET status = $2, reconciliation_ref = NULL")).
		WithArgs("av_1", "VALIDATED", "off_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM recon.credit_note_offsets").
		WithArgs("off_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	offset, err := ds.DeleteOffset(context.Background(), "off_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"av_1"}, offset.CreditNoteIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAndUpdateRun(t *testing.T) {
	ds, mock := newMockDatasource(t)
	run := &model.ReconciliationRun{
		RunID: "run_1", StatementID: "stmt_1", Status: model.RunStatusStarted, Actor: "system", StartedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO recon.reconciliation_runs").
		WithArgs("run_1", "stmt_1", "started", 0, 0, 0, 0, false, "system", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, ds.RecordRun(context.Background(), run))

	completed := time.Now()
	run.Status = model.RunStatusCompleted
	run.Matched = 3
	run.CompletedAt = &completed
	mock.ExpectExec("UPDATE recon.reconciliation_runs").
		WithArgs("run_1", "completed", 3, 0, 0, 0, completed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ds.UpdateRun(context.Background(), run))

	mock.ExpectExec("UPDATE recon.reconciliation_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	err := ds.UpdateRun(context.Background(), &model.ReconciliationRun{RunID: "run_x"})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
