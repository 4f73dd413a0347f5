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

	"github.com/blnkfinance/recon"
	"github.com/blnkfinance/recon/config"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	opts, err := recon.RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(opts, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      map[string]int{conf.Queue.ReconciliationQueue: 1},
		Logger:      logrus.StandardLogger(),
	}), nil
}

func initializeTaskHandlers(r *reconInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(recon.TypeReconcileStatement, r.recon.ProcessReconciliationTask)
}

// monitoringHandler serves asynqmon for queue health checks.
func monitoringHandler(conf *config.Configuration) (http.Handler, error) {
	opts, err := recon.RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	return asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opts,
	}), nil
}

// workerCommands starts the workers that run queued reconciliations.
func workerCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start recon workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := r.cnf

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(r, mux)

			h, err := monitoringHandler(conf)
			if err != nil {
				log.Fatal(err)
			}
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
