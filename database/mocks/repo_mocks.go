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
package mocks

import (
	"context"

	"github.com/blnkfinance/recon/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Entity methods

func (m *MockDataSource) FindCandidates(ctx context.Context, family model.Family, filter model.CandidateFilter) ([]model.CandidateEntity, error) {
	args := m.Called(ctx, family, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CandidateEntity), args.Error(1)
}

func (m *MockDataSource) GetCandidate(ctx context.Context, family model.Family, id string) (*model.CandidateEntity, error) {
	args := m.Called(ctx, family, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CandidateEntity), args.Error(1)
}

func (m *MockDataSource) GetInvoices(ctx context.Context, ids []string) ([]model.Invoice, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Invoice), args.Error(1)
}

// Rule methods

func (m *MockDataSource) CreateRule(ctx context.Context, rule *model.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockDataSource) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Rule), args.Error(1)
}

func (m *MockDataSource) ListRules(ctx context.Context, activeOnly bool) ([]model.Rule, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Rule), args.Error(1)
}

func (m *MockDataSource) ActiveRules(ctx context.Context, ruleType model.RuleType) ([]model.Rule, error) {
	args := m.Called(ctx, ruleType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Rule), args.Error(1)
}

func (m *MockDataSource) UpdateRule(ctx context.Context, rule *model.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockDataSource) SetRuleActive(ctx context.Context, id string, active bool) (*model.Rule, error) {
	args := m.Called(ctx, id, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Rule), args.Error(1)
}

// Statement methods

func (m *MockDataSource) RecordStatement(ctx context.Context, stmt *model.Statement, lines []model.TransactionLine) error {
	args := m.Called(ctx, stmt, lines)
	return args.Error(0)
}

func (m *MockDataSource) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Statement), args.Error(1)
}

func (m *MockDataSource) GetStatementLines(ctx context.Context, statementID string) ([]model.TransactionLine, error) {
	args := m.Called(ctx, statementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TransactionLine), args.Error(1)
}

func (m *MockDataSource) GetLine(ctx context.Context, lineID string) (*model.TransactionLine, error) {
	args := m.Called(ctx, lineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TransactionLine), args.Error(1)
}

// Link methods

func (m *MockDataSource) CreateLink(ctx context.Context, req model.LinkRequest) (*model.Link, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Link), args.Error(1)
}

func (m *MockDataSource) DeleteLink(ctx context.Context, linkNumber, actor string) (*model.Link, error) {
	args := m.Called(ctx, linkNumber, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Link), args.Error(1)
}

func (m *MockDataSource) GetLink(ctx context.Context, linkNumber string) (*model.Link, error) {
	args := m.Called(ctx, linkNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Link), args.Error(1)
}

func (m *MockDataSource) LinksForStatement(ctx context.Context, statementID string) ([]model.Link, error) {
	args := m.Called(ctx, statementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Link), args.Error(1)
}

func (m *MockDataSource) LinksForLine(ctx context.Context, lineID string) ([]model.Link, error) {
	args := m.Called(ctx, lineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Link), args.Error(1)
}

func (m *MockDataSource) LinksForEntity(ctx context.Context, family model.Family, entityID string) ([]model.Link, error) {
	args := m.Called(ctx, family, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Link), args.Error(1)
}

func (m *MockDataSource) LinkEvents(ctx context.Context, statementID string) ([]model.LinkEvent, error) {
	args := m.Called(ctx, statementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LinkEvent), args.Error(1)
}

// Offset methods

func (m *MockDataSource) RecordOffset(ctx context.Context, offset *model.CreditNoteOffset) error {
	args := m.Called(ctx, offset)
	return args.Error(0)
}

func (m *MockDataSource) GetOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditNoteOffset), args.Error(1)
}

func (m *MockDataSource) DeleteOffset(ctx context.Context, id string) (*model.CreditNoteOffset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditNoteOffset), args.Error(1)
}

// Run methods

func (m *MockDataSource) RecordRun(ctx context.Context, run *model.ReconciliationRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDataSource) UpdateRun(ctx context.Context, run *model.ReconciliationRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDataSource) GetRun(ctx context.Context, id string) (*model.ReconciliationRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconciliationRun), args.Error(1)
}

func (m *MockDataSource) RunsForStatement(ctx context.Context, statementID string) ([]model.ReconciliationRun, error) {
	args := m.Called(ctx, statementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ReconciliationRun), args.Error(1)
}
