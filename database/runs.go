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
	"database/sql"

	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
)

const runColumns = `run_id, statement_id, status, matched, unmatched, failed, skipped, is_dry_run, actor, started_at, completed_at`

func (d Datasource) RecordRun(ctx context.Context, run *model.ReconciliationRun) error {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Saving reconciliation run to db")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO recon.reconciliation_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.RunID, run.StatementID, run.Status, run.Matched, run.Unmatched, run.Failed, run.Skipped,
		run.IsDryRun, run.Actor, run.StartedAt, run.CompletedAt)
	if err != nil {
		return repoError(err, "failed to record reconciliation run")
	}
	return nil
}

// UpdateRun stores the status and counters of a run.
func (d Datasource) UpdateRun(ctx context.Context, run *model.ReconciliationRun) error {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Updating reconciliation run")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.reconciliation_runs
		SET status = $2, matched = $3, unmatched = $4, failed = $5, skipped = $6, completed_at = $7
		WHERE run_id = $1
	`, run.RunID, run.Status, run.Matched, run.Unmatched, run.Failed, run.Skipped, run.CompletedAt)
	if err != nil {
		return repoError(err, "failed to update reconciliation run")
	}
	return expectOneRow(result, "reconciliation run")
}

func (d Datasource) GetRun(ctx context.Context, id string) (*model.ReconciliationRun, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Fetching reconciliation run")
	defer span.End()

	run, err := scanRun(d.Conn.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM recon.reconciliation_runs WHERE run_id = $1
	`, id))
	if err != nil {
		return nil, notFoundOr(err, "reconciliation run")
	}
	return &run, nil
}

func (d Datasource) RunsForStatement(ctx context.Context, statementID string) ([]model.ReconciliationRun, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Fetching reconciliation runs by statement")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+runColumns+` FROM recon.reconciliation_runs
		WHERE statement_id = $1
		ORDER BY started_at DESC
	`, statementID)
	if err != nil {
		return nil, repoError(err, "failed to retrieve reconciliation runs")
	}
	defer rows.Close()

	runs := []model.ReconciliationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, repoError(err, "failed to scan reconciliation run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over reconciliation runs")
	}
	return runs, nil
}

func scanRun(row rowScanner) (model.ReconciliationRun, error) {
	var (
		run         model.ReconciliationRun
		completedAt sql.NullTime
	)
	err := row.Scan(&run.RunID, &run.StatementID, &run.Status, &run.Matched, &run.Unmatched, &run.Failed,
		&run.Skipped, &run.IsDryRun, &run.Actor, &run.StartedAt, &completedAt)
	if err != nil {
		return model.ReconciliationRun{}, err
	}
	run.CompletedAt = timePtr(completedAt)
	return run, nil
}
