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

import "github.com/shopspring/decimal"

type CreateStatement struct {
	AccountLabel string          `json:"account_label"`
	FileName     string          `json:"file_name"`
	Lines        []StatementLine `json:"lines"`
}

// StatementLine is one pre-parsed bank row. Date is YYYY-MM-DD.
type StatementLine struct {
	LineNumber int             `json:"line_number"`
	Date       string          `json:"date"`
	Label      string          `json:"label"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
}

type ProcessStatement struct {
	DryRun bool   `json:"dry_run"`
	Actor  string `json:"actor"`
	// Async hands the run to the workers and returns immediately.
	Async bool `json:"async"`
}
