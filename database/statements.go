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
	"time"

	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const lineColumns = `line_id, statement_id, line_number, date, label, debit, credit`

// RecordStatement stores a statement with its lines in one transaction.
// Missing ids are generated.
func (d Datasource) RecordStatement(ctx context.Context, stmt *model.Statement, lines []model.TransactionLine) error {
	ctx, span := otel.Tracer("Statements").Start(ctx, "Saving statement to db")
	defer span.End()

	if stmt.StatementID == "" {
		stmt.StatementID = model.GenerateUUIDWithSuffix("stmt")
	}
	stmt.LineCount = len(lines)
	stmt.CreatedAt = time.Now().UTC()
	span.SetAttributes(attribute.String("statement.id", stmt.StatementID), attribute.Int("statement.lines", len(lines)))

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return repoError(err, "failed to begin transaction")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recon.statements (statement_id, account_label, file_name, line_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, stmt.StatementID, stmt.AccountLabel, stmt.FileName, stmt.LineCount, stmt.CreatedAt)
	if err != nil {
		return rollback(tx, repoError(err, "failed to create statement"))
	}

	for i := range lines {
		line := &lines[i]
		line.StatementID = stmt.StatementID
		if line.LineID == "" {
			line.LineID = model.GenerateUUIDWithSuffix("line")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recon.transaction_lines (`+lineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, line.LineID, line.StatementID, line.LineNumber, line.Date, line.Label, line.Debit, line.Credit)
		if err != nil {
			return rollback(tx, repoError(err, "failed to record transaction line"))
		}
	}

	if err := tx.Commit(); err != nil {
		return repoError(err, "failed to commit statement")
	}
	return nil
}

func (d Datasource) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	ctx, span := otel.Tracer("Statements").Start(ctx, "Fetching statement from db")
	defer span.End()

	stmt := model.Statement{}
	var accountLabel, fileName *string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT statement_id, account_label, file_name, line_count, created_at
		FROM recon.statements WHERE statement_id = $1
	`, id).Scan(&stmt.StatementID, &accountLabel, &fileName, &stmt.LineCount, &stmt.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "statement")
	}
	if accountLabel != nil {
		stmt.AccountLabel = *accountLabel
	}
	if fileName != nil {
		stmt.FileName = *fileName
	}
	return &stmt, nil
}

// GetStatementLines returns the lines of a statement in line-number order.
func (d Datasource) GetStatementLines(ctx context.Context, statementID string) ([]model.TransactionLine, error) {
	ctx, span := otel.Tracer("Statements").Start(ctx, "Fetching statement lines")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+lineColumns+` FROM recon.transaction_lines
		WHERE statement_id = $1
		ORDER BY line_number ASC
	`, statementID)
	if err != nil {
		return nil, repoError(err, "failed to retrieve transaction lines")
	}
	defer rows.Close()

	lines := []model.TransactionLine{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, repoError(err, "failed to scan transaction line")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, repoError(err, "error occurred while iterating over transaction lines")
	}
	return lines, nil
}

func (d Datasource) GetLine(ctx context.Context, lineID string) (*model.TransactionLine, error) {
	ctx, span := otel.Tracer("Statements").Start(ctx, "Fetching transaction line")
	defer span.End()

	line, err := scanLine(d.Conn.QueryRowContext(ctx, `
		SELECT `+lineColumns+` FROM recon.transaction_lines WHERE line_id = $1
	`, lineID))
	if err != nil {
		return nil, notFoundOr(err, "transaction line")
	}
	return &line, nil
}

func scanLine(row rowScanner) (model.TransactionLine, error) {
	line := model.TransactionLine{}
	err := row.Scan(&line.LineID, &line.StatementID, &line.LineNumber, &line.Date, &line.Label, &line.Debit, &line.Credit)
	if err != nil {
		return model.TransactionLine{}, err
	}
	line.Date = line.Date.UTC()
	return line, nil
}
