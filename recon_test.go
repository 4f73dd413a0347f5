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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/database/mocks"
	"github.com/blnkfinance/recon/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func testConfig(redisAddr string) *config.Configuration {
	return &config.Configuration{
		Redis: config.RedisConfig{Dns: redisAddr},
		Reconciliation: config.ReconciliationConfig{
			InvoiceThreshold:           50,
			SubscriptionThreshold:      30,
			ChargeDeclarationThreshold: 30,
			PartnerThreshold:           30,
			Workers:                    2,
			LockTimeout:                5 * time.Second,
			LockWait:                   200 * time.Millisecond,
			RuleCacheTTL:               time.Minute,
			SystemActor:                "system",
		},
		Queue: config.QueueConfig{ReconciliationQueue: "reconciliation", Concurrency: 1, MaxRetry: 1},
	}
}

func newTestRecon(t *testing.T) (*Recon, *mocks.MockDataSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cnf := testConfig(mr.Addr())
	config.MockConfig(cnf)

	queue, err := NewQueue(cnf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	ds := new(mocks.MockDataSource)
	return newRecon(ds, client, queue, cnf), ds, mr
}

func debitLine(id string, number int, amount, label string, date time.Time) model.TransactionLine {
	return model.TransactionLine{
		LineID:      id,
		StatementID: "stmt_1",
		LineNumber:  number,
		Date:        date,
		Label:       label,
		Debit:       decimal.RequireFromString(amount),
	}
}

func creditLine(id string, number int, amount, label string, date time.Time) model.TransactionLine {
	return model.TransactionLine{
		LineID:      id,
		StatementID: "stmt_1",
		LineNumber:  number,
		Date:        date,
		Label:       label,
		Credit:      decimal.RequireFromString(amount),
	}
}

func invoiceCandidate(id, amount string, issued time.Time) model.CandidateEntity {
	return model.Invoice{
		InvoiceID:  id,
		Number:     "F-" + id,
		Kind:       model.InvoiceKindSale,
		Status:     model.InvoiceStatusValidated,
		TotalTTC:   decimal.RequireFromString(amount),
		ClientName: "Acme",
		IssueDate:  &issued,
	}.Candidate()
}

func subscriptionCandidate(id, partner, amount string) model.CandidateEntity {
	a := decimal.RequireFromString(amount)
	return model.Subscription{
		SubscriptionID: id,
		PartnerName:    partner,
		Label:          "Contrat",
		Amount:         &a,
		Active:         true,
	}.Candidate()
}

// ruleName gives every built rule a name so validation only trips on what a
// test sets up.
func ruleName() string {
	return gofakeit.Company() + " rule"
}

func amountRule(id string, priority, score int) model.Rule {
	tolerance := decimal.RequireFromString("0.01")
	return model.Rule{
		RuleID: id, Name: ruleName(), Type: model.RuleAmount, Active: true,
		Priority: priority, ScoreContribution: score,
		Condition: &model.AmountCondition{Tolerance: &tolerance},
	}
}

func dateRule(id string, priority, score int) model.Rule {
	window := 5
	return model.Rule{
		RuleID: id, Name: ruleName(), Type: model.RuleDate, Active: true,
		Priority: priority, ScoreContribution: score,
		Condition: &model.DateCondition{WindowDays: &window, Families: []model.Family{model.FamilyInvoice}},
	}
}

func subscriptionRule(id string, priority, score int, keywords ...string) model.Rule {
	return model.Rule{
		RuleID: id, Name: ruleName(), Type: model.RuleSubscription, Active: true,
		Priority: priority, ScoreContribution: score,
		Condition: &model.SubscriptionCondition{KeywordCondition: model.KeywordCondition{Keywords: keywords}},
	}
}

// expectCandidates registers the candidate pools of every family.
func expectCandidates(ds *mocks.MockDataSource, pools map[model.Family][]model.CandidateEntity) {
	for _, family := range model.Families {
		pool := pools[family]
		if pool == nil {
			pool = []model.CandidateEntity{}
		}
		ds.On("FindCandidates", mock.Anything, family, model.CandidateFilter{}).Return(pool, nil)
	}
}
