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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blnkfinance/recon/api"
	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/traces"
	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serveTLS runs the API over HTTPS with certificates managed by CertMagic.
// Without a configured domain it falls back to localhost.
func serveTLS(ctx context.Context, r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}
	return runServer(ctx, server, func() error { return server.ListenAndServeTLS("", "") })
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, server *http.Server, serve func() error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := serve(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(ctx, router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	return runServer(ctx, server, server.ListenAndServe)
}

// initializeTracing is a no-op when tracing is disabled.
func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.Tracing.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := traces.SetupOTelSDK(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func serverCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start recon server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeTracing(ctx, r.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logrus.Errorf("Error during shutdown: %v", err)
				}
			}()

			router := api.NewAPI(r.recon).Router()
			if err := startServer(ctx, router, r.cnf.Server); err != nil {
				logrus.Fatal(err)
			}
		},
	}

	return cmd
}
