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

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// loadCandidates fetches every family concurrently. Any lookup failure fails
// the whole load; a partial candidate set would silently skew scores.
func (r *Recon) loadCandidates(ctx context.Context, filter model.CandidateFilter) (map[model.Family][]model.CandidateEntity, error) {
	ctx, span := otel.Tracer("Entities").Start(ctx, "Loading candidates")
	defer span.End()

	pools := make([][]model.CandidateEntity, len(model.Families))
	g, gctx := errgroup.WithContext(ctx)
	for i, family := range model.Families {
		i, family := i, family
		g.Go(func() error {
			candidates, err := r.datasource.FindCandidates(gctx, family, filter)
			if err != nil {
				return err
			}
			pools[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make(map[model.Family][]model.CandidateEntity, len(model.Families))
	for i, family := range model.Families {
		out[family] = pools[i]
	}
	return out, nil
}

// FindCandidates exposes the entity repository of one family.
func (r *Recon) FindCandidates(ctx context.Context, family model.Family, filter model.CandidateFilter) ([]model.CandidateEntity, error) {
	if !family.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown family %q", family), nil)
	}
	return r.datasource.FindCandidates(ctx, family, filter)
}

// RecordStatement validates and stores a parsed statement. Line numbers must
// be unique within the statement.
func (r *Recon) RecordStatement(ctx context.Context, stmt model.Statement, lines []model.TransactionLine) (*model.Statement, []model.TransactionLine, error) {
	ctx, span := otel.Tracer("Statements").Start(ctx, "Recording statement")
	defer span.End()

	if len(lines) == 0 {
		return nil, nil, apierror.NewAPIError(apierror.ErrValidation, "a statement needs at least one line", nil)
	}

	if stmt.StatementID == "" {
		stmt.StatementID = model.GenerateUUIDWithSuffix("stmt")
	}

	seen := make(map[int]bool, len(lines))
	for i := range lines {
		line := &lines[i]
		line.StatementID = stmt.StatementID
		if err := line.Validate(); err != nil {
			return nil, nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("line %d is invalid: %v", line.LineNumber, err), err)
		}
		if seen[line.LineNumber] {
			return nil, nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("duplicate line number %d", line.LineNumber), nil)
		}
		seen[line.LineNumber] = true
	}

	if err := r.datasource.RecordStatement(ctx, &stmt, lines); err != nil {
		return nil, nil, err
	}
	return &stmt, lines, nil
}

func (r *Recon) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	return r.datasource.GetStatement(ctx, id)
}

func (r *Recon) GetStatementLines(ctx context.Context, id string) ([]model.TransactionLine, error) {
	if _, err := r.datasource.GetStatement(ctx, id); err != nil {
		return nil, err
	}
	return r.datasource.GetStatementLines(ctx, id)
}
