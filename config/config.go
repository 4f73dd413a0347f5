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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5005"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"RECON_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"RECON_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"RECON_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"RECON_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"RECON_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"RECON_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"RECON_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"RECON_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"RECON_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"RECON_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"RECON_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"RECON_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"RECON_REDIS_SKIP_TLS_VERIFY"`
}

// ReconciliationConfig tunes the matcher and the batch session.
type ReconciliationConfig struct {
	InvoiceThreshold           int           `json:"invoice_threshold" envconfig:"RECON_INVOICE_THRESHOLD"`
	SubscriptionThreshold      int           `json:"subscription_threshold" envconfig:"RECON_SUBSCRIPTION_THRESHOLD"`
	ChargeDeclarationThreshold int           `json:"charge_declaration_threshold" envconfig:"RECON_CHARGE_DECLARATION_THRESHOLD"`
	PartnerThreshold           int           `json:"partner_threshold" envconfig:"RECON_PARTNER_THRESHOLD"`
	Workers                    int           `json:"workers" envconfig:"RECON_WORKERS"`
	LockTimeout                time.Duration `json:"lock_timeout" envconfig:"RECON_LOCK_TIMEOUT"`
	LockWait                   time.Duration `json:"lock_wait" envconfig:"RECON_LOCK_WAIT"`
	RuleCacheTTL               time.Duration `json:"rule_cache_ttl" envconfig:"RECON_RULE_CACHE_TTL"`
	SystemActor                string        `json:"system_actor" envconfig:"RECON_SYSTEM_ACTOR"`
}

type QueueConfig struct {
	ReconciliationQueue string `json:"reconciliation_queue" envconfig:"RECON_QUEUE_NAME"`
	Concurrency         int    `json:"concurrency" envconfig:"RECON_QUEUE_CONCURRENCY"`
	MaxRetry            int    `json:"max_retry" envconfig:"RECON_QUEUE_MAX_RETRY"`
	MonitoringPort      string `json:"monitoring_port" envconfig:"RECON_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"RECON_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"RECON_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"RECON_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"RECON_TRACING_ENABLED"`
	Endpoint    string `json:"endpoint" envconfig:"RECON_TRACING_ENDPOINT"`
	ServiceName string `json:"service_name" envconfig:"RECON_TRACING_SERVICE_NAME"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"RECON_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName    string               `json:"project_name" envconfig:"RECON_PROJECT_NAME"`
	Server         ServerConfig         `json:"server"`
	DataSource     DataSourceConfig     `json:"data_source"`
	Redis          RedisConfig          `json:"redis"`
	Reconciliation ReconciliationConfig `json:"reconciliation"`
	Queue          QueueConfig          `json:"queue"`
	Notification   Notification         `json:"notification"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
	Tracing        TracingConfig        `json:"tracing"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("recon", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called recon.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Recon Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.DataSource.MaxOpenConns == 0 {
		cnf.DataSource.MaxOpenConns = 25
	}
	if cnf.DataSource.MaxIdleConns == 0 {
		cnf.DataSource.MaxIdleConns = 10
	}
	if cnf.DataSource.ConnMaxLifetime == 0 {
		cnf.DataSource.ConnMaxLifetime = 30 * time.Minute
	}
	if cnf.DataSource.ConnMaxIdleTime == 0 {
		cnf.DataSource.ConnMaxIdleTime = 5 * time.Minute
	}

	if err := cnf.Reconciliation.addDefaults(); err != nil {
		return err
	}

	if cnf.Queue.ReconciliationQueue == "" {
		cnf.Queue.ReconciliationQueue = "reconciliation"
	}
	if cnf.Queue.Concurrency == 0 {
		cnf.Queue.Concurrency = 4
	}
	if cnf.Queue.MaxRetry == 0 {
		cnf.Queue.MaxRetry = 3
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = "recon"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (r *ReconciliationConfig) addDefaults() error {
	if r.InvoiceThreshold == 0 {
		r.InvoiceThreshold = 50
	}
	if r.SubscriptionThreshold == 0 {
		r.SubscriptionThreshold = 30
	}
	if r.ChargeDeclarationThreshold == 0 {
		r.ChargeDeclarationThreshold = 30
	}
	if r.PartnerThreshold == 0 {
		r.PartnerThreshold = 30
	}
	for _, threshold := range []int{r.InvoiceThreshold, r.SubscriptionThreshold, r.ChargeDeclarationThreshold, r.PartnerThreshold} {
		if threshold < 0 || threshold > 100 {
			return errors.New("reconciliation thresholds must be between 0 and 100")
		}
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}
	if r.LockTimeout == 0 {
		r.LockTimeout = 30 * time.Second
	}
	if r.LockWait == 0 {
		r.LockWait = 5 * time.Second
	}
	if r.RuleCacheTTL == 0 {
		r.RuleCacheTTL = 5 * time.Minute
	}
	if r.SystemActor == "" {
		r.SystemActor = "system"
	}
	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
