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
	"errors"
	"sync"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/apierror"
	pgconn "github.com/blnkfinance/recon/internal/pg-conn"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Schema holds every table of the service.
const Schema = "recon"

var instance *Datasource
var once sync.Once

// Datasource is the Postgres implementation of IDataSource.
type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection returns the process-wide datasource, connecting on first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := pgconn.ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("database connection was not initialized")
	}
	return instance, nil
}

// EnsureSchema creates the service schema so migrations can record themselves in it.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+Schema)
	return err
}

// repoError wraps a backing store failure. Unique violations become conflicts,
// everything else is reported as the store being unavailable.
func repoError(err error, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return apierror.NewAPIError(apierror.ErrConflict, message+": record already exists", pkgerrors.Wrap(err, message))
	}
	return apierror.NewAPIError(apierror.ErrRepository, message, pkgerrors.Wrap(err, message))
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to repoError.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, what+" not found", err)
	}
	return repoError(err, "failed to retrieve "+what)
}

// rollback aborts tx, keeping the original error.
func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		logrus.Errorf("rollback failed: %v", rbErr)
	}
	return err
}
