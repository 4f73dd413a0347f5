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

	"github.com/blnkfinance/recon"
	"github.com/blnkfinance/recon/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const lineDateFormat = "2006-01-02"

func validateDateFormat(format, value string) error {
	_, err := time.Parse(format, value)
	if err != nil {
		return errors.New("please format the date as 'YYYY-MM-DD' (e.g., 2024-04-22)")
	}
	return nil
}

func familyRule(value interface{}) error {
	family, ok := value.(string)
	if !ok {
		return errors.New("invalid type for family")
	}
	if _, err := model.ParseFamily(family); err != nil {
		return err
	}
	return nil
}

func (s *CreateStatement) ValidateCreateStatement() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.AccountLabel, validation.Required),
		validation.Field(&s.Lines, validation.Required),
	)
}

func (l StatementLine) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Date, validation.Required, validation.By(func(value interface{}) error {
			dateStr, ok := value.(string)
			if !ok {
				return errors.New("invalid type for date")
			}
			return validateDateFormat(lineDateFormat, dateStr)
		})),
		validation.Field(&l.Label, validation.Required),
	)
}

func (s *CreateStatement) ToStatement() (model.Statement, []model.TransactionLine) {
	lines := make([]model.TransactionLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		date, _ := time.Parse(lineDateFormat, l.Date)
		lines = append(lines, model.TransactionLine{
			LineNumber: l.LineNumber,
			Date:       date,
			Label:      l.Label,
			Debit:      l.Debit,
			Credit:     l.Credit,
		})
	}
	return model.Statement{AccountLabel: s.AccountLabel, FileName: s.FileName}, lines
}

func (p *ProcessStatement) ToOptions() recon.ProcessOptions {
	return recon.ProcessOptions{DryRun: p.DryRun, Actor: p.Actor}
}

func (l *CreateLink) ValidateCreateLink() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.LineID, validation.Required),
		validation.Field(&l.Family, validation.Required, validation.By(familyRule)),
		validation.Field(&l.EntityID, validation.Required),
		validation.Field(&l.Actor, validation.Required),
	)
}

func (l *CreateLink) ToManualLinkRequest() recon.ManualLinkRequest {
	return recon.ManualLinkRequest{
		LineID:   l.LineID,
		Family:   model.Family(l.Family),
		EntityID: l.EntityID,
		Replace:  l.Replace,
		Actor:    l.Actor,
	}
}

func (o *CreateOffset) ValidateCreateOffset() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.TargetInvoiceID, validation.Required),
		validation.Field(&o.Actor, validation.Required),
	)
}
