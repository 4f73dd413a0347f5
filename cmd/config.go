package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/blnkfinance/recon/config"
	"github.com/spf13/cobra"
)

const redacted = "xxxxx"

func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration with secrets redacted",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			data, err := json.MarshalIndent(redactConfig(*cfg), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		},
	}
	return cmd
}

// redactConfig hides the server secret, connection string passwords and the
// Slack webhook.
func redactConfig(cfg config.Configuration) config.Configuration {
	if cfg.Server.SecretKey != "" {
		cfg.Server.SecretKey = redacted
	}
	if cfg.Notification.Slack.WebhookUrl != "" {
		cfg.Notification.Slack.WebhookUrl = redacted
	}
	cfg.DataSource.Dns = redactDSN(cfg.DataSource.Dns)
	cfg.Redis.Dns = redactDSN(cfg.Redis.Dns)
	return cfg
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}
