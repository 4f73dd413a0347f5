package main

import (
	"testing"

	"github.com/blnkfinance/recon/config"
	"github.com/stretchr/testify/assert"
)

func TestRedactConfig(t *testing.T) {
	cfg := config.Configuration{
		Server:     config.ServerConfig{SecretKey: "master-key", Port: "5001"},
		DataSource: config.DataSourceConfig{Dns: "postgres://recon:s3cret@db:5432/recon?sslmode=disable"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
	}
	cfg.Notification.Slack.WebhookUrl = "https://hooks.slack.com/services/T000/B000/XXXX"

	out := redactConfig(cfg)
	assert.Equal(t, "xxxxx", out.Server.SecretKey)
	assert.Equal(t, "5001", out.Server.Port)
	assert.Equal(t, "postgres://recon:xxxxx@db:5432/recon?sslmode=disable", out.DataSource.Dns)
	assert.Equal(t, "localhost:6379", out.Redis.Dns)
	assert.Equal(t, "xxxxx", out.Notification.Slack.WebhookUrl)
	assert.Equal(t, "master-key", cfg.Server.SecretKey, "input is left untouched")
}

func TestRedactDSN_KeepsPasswordlessURLs(t *testing.T) {
	assert.Equal(t, "redis://cache:6379/0", redactDSN("redis://cache:6379/0"))
	assert.Equal(t, "", redactDSN(""))
}
