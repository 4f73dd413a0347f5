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

package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Direction is the polarity of a bank movement.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
	// DirectionEntity is only valid inside a TRANSACTION_TYPE condition and
	// means "the direction expected by the candidate entity".
	DirectionEntity Direction = "ENTITY"
)

// Statement is one uploaded bank statement file.
type Statement struct {
	ID           int64     `json:"-"`
	StatementID  string    `json:"statement_id"`
	AccountLabel string    `json:"account_label"`
	FileName     string    `json:"file_name"`
	LineCount    int       `json:"line_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// TransactionLine is one bank statement row. Lines are immutable once stored;
// their link state lives in the link ledger.
type TransactionLine struct {
	ID          int64           `json:"-"`
	LineID      string          `json:"line_id"`
	StatementID string          `json:"statement_id"`
	LineNumber  int             `json:"line_number"`
	Date        time.Time       `json:"date"`
	Label       string          `json:"label"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Amount is the signed movement, credit minus debit.
func (l TransactionLine) Amount() decimal.Decimal {
	return l.Credit.Sub(l.Debit)
}

// Direction returns DEBIT for outgoing movements and CREDIT otherwise.
func (l TransactionLine) Direction() Direction {
	if l.Debit.IsPositive() {
		return DirectionDebit
	}
	return DirectionCredit
}

// Validate checks the debit/credit invariant.
func (l *TransactionLine) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.StatementID, validation.Required),
		validation.Field(&l.LineNumber, validation.Min(0)),
		validation.Field(&l.Date, validation.Required),
		validation.Field(&l.Debit, validation.By(nonNegative)),
		validation.Field(&l.Credit, validation.By(nonNegative)),
		validation.Field(&l.Credit, validation.By(func(interface{}) error {
			if l.Debit.IsZero() == l.Credit.IsZero() {
				return errors.New("exactly one of debit or credit must be non-zero")
			}
			return nil
		})),
	)
}

func nonNegative(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}
