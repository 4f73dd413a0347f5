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
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDBConnection_Failure(t *testing.T) {
	instance = nil
	once = sync.Once{}
	t.Cleanup(func() {
		instance = nil
		once = sync.Once{}
	})

	_, err := GetDBConnection(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "invalid-dns"},
	})
	assert.Error(t, err)

	// once has fired, later calls must not hand out a nil datasource
	_, err = GetDBConnection(&config.Configuration{})
	assert.Error(t, err)
}

func TestRepoError(t *testing.T) {
	unique := &pq.Error{Code: "23505"}
	err := repoError(unique, "failed to create link")
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	err = repoError(errors.New("connection reset"), "failed to create link")
	assert.True(t, apierror.Is(err, apierror.ErrRepository))
}

func TestNotFoundOr(t *testing.T) {
	err := notFoundOr(sql.ErrNoRows, "statement")
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.Contains(t, err.Error(), "statement not found")

	err = notFoundOr(errors.New("timeout"), "statement")
	assert.True(t, apierror.Is(err, apierror.ErrRepository))
}
