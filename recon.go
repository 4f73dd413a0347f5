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
	"embed"
	"fmt"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/database"
	"github.com/blnkfinance/recon/internal/cache"
	redis_db "github.com/blnkfinance/recon/internal/redis-db"
	"github.com/blnkfinance/recon/matcher"
	"github.com/redis/go-redis/v9"
)

// Recon is the reconciliation service: it scores bank statement lines
// against business records and keeps the link ledger.
type Recon struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	cache      cache.Cache
	queue      *Queue
	config     *config.Configuration
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewRecon connects to Redis and the queue using the loaded configuration.
func NewRecon(db database.IDataSource) (*Recon, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	queue, err := NewQueue(configuration)
	if err != nil {
		return nil, err
	}
	return newRecon(db, redisClient.Client(), queue, configuration), nil
}

func newRecon(db database.IDataSource, client redis.UniversalClient, queue *Queue, configuration *config.Configuration) *Recon {
	return &Recon{
		datasource: db,
		redis:      client,
		cache:      cache.NewCache(client, configuration.Reconciliation.RuleCacheTTL),
		queue:      queue,
		config:     configuration,
	}
}

// Thresholds returns the configured minimum score of each family.
func (r *Recon) Thresholds() matcher.Thresholds {
	c := r.config.Reconciliation
	return matcher.Thresholds{
		Invoice:           c.InvoiceThreshold,
		Subscription:      c.SubscriptionThreshold,
		ChargeDeclaration: c.ChargeDeclarationThreshold,
		Partner:           c.PartnerThreshold,
	}
}

func (r *Recon) actorOrSystem(actor string) string {
	if actor == "" {
		return r.config.Reconciliation.SystemActor
	}
	return actor
}
