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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/apierror"
	redis_db "github.com/blnkfinance/recon/internal/redis-db"
	"github.com/blnkfinance/recon/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TypeReconcileStatement is the asynq task type of a background batch run.
const TypeReconcileStatement = "reconciliation:statement"

// Queue enqueues background reconciliation runs.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	name      string
	maxRetry  int
}

// ReconciliationPayload is the body of a TypeReconcileStatement task.
type ReconciliationPayload struct {
	RunID       string `json:"run_id"`
	StatementID string `json:"statement_id"`
	DryRun      bool   `json:"dry_run"`
	Actor       string `json:"actor"`
}

// RedisClientOpt derives asynq connection options from the Redis config.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	opts, err := RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}
	return &Queue{
		Client:    asynq.NewClient(opts),
		Inspector: asynq.NewInspector(opts),
		name:      conf.Queue.ReconciliationQueue,
		maxRetry:  conf.Queue.MaxRetry,
	}, nil
}

// Enqueue schedules a run. The run id doubles as the task id so a run is
// never queued twice.
func (q *Queue) Enqueue(ctx context.Context, payload ReconciliationPayload) (*asynq.TaskInfo, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(TypeReconcileStatement, body)
	return q.Client.EnqueueContext(ctx, task,
		asynq.TaskID(payload.RunID),
		asynq.Queue(q.name),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(30*time.Minute),
	)
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		logrus.Warnf("failed to close queue inspector: %v", err)
	}
	return q.Client.Close()
}

// StartReconciliation records a run and hands it to the workers. The returned
// run can be polled with GetRun.
func (r *Recon) StartReconciliation(ctx context.Context, statementID string, opts ProcessOptions) (*model.ReconciliationRun, error) {
	if _, err := r.datasource.GetStatement(ctx, statementID); err != nil {
		return nil, err
	}

	run := &model.ReconciliationRun{
		RunID:       model.GenerateUUIDWithSuffix("run"),
		StatementID: statementID,
		Status:      model.RunStatusStarted,
		IsDryRun:    opts.DryRun,
		Actor:       r.actorOrSystem(opts.Actor),
		StartedAt:   time.Now().UTC(),
	}
	if err := r.datasource.RecordRun(ctx, run); err != nil {
		return nil, err
	}

	_, err := r.queue.Enqueue(ctx, ReconciliationPayload{
		RunID:       run.RunID,
		StatementID: statementID,
		DryRun:      opts.DryRun,
		Actor:       run.Actor,
	})
	if err != nil {
		r.finishRun(ctx, run, err)
		return nil, apierror.NewAPIError(apierror.ErrRepository, "failed to enqueue reconciliation", err)
	}
	return run, nil
}

// ProcessReconciliationTask is the asynq handler of TypeReconcileStatement.
// Validation and not-found failures are not retried.
func (r *Recon) ProcessReconciliationTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconciliationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid reconciliation payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := r.ProcessStatement(ctx, payload.StatementID, ProcessOptions{
		DryRun: payload.DryRun,
		Actor:  payload.Actor,
		RunID:  payload.RunID,
	})
	if err != nil {
		switch apierror.CodeOf(err) {
		case apierror.ErrValidation, apierror.ErrNotFound, apierror.ErrConflict:
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"run_id":    result.Run.RunID,
		"matched":   result.Run.Matched,
		"unmatched": result.Run.Unmatched,
		"failed":    result.Run.Failed,
		"skipped":   result.Run.Skipped,
	}).Info("reconciliation run completed")
	return nil
}
