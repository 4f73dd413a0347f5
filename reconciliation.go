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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	redlock "github.com/blnkfinance/recon/internal/lock"
	"github.com/blnkfinance/recon/internal/notification"
	"github.com/blnkfinance/recon/matcher"
	"github.com/blnkfinance/recon/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ProcessOptions tunes one batch run.
type ProcessOptions struct {
	// DryRun scores and plans links without persisting any of them.
	DryRun bool
	Actor  string
	// RunID refers to a run already recorded by StartReconciliation.
	RunID string
}

// ProcessStatement runs the matcher over every line of a statement that holds
// no link yet and auto-links the slot winners. Lines are scored concurrently
// and linked one at a time in line-number order. A failure on one line is
// reported on that line and the batch carries on.
func (r *Recon) ProcessStatement(ctx context.Context, statementID string, opts ProcessOptions) (*model.BatchResult, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Processing statement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", statementID), attribute.Bool("dry_run", opts.DryRun))

	opts.Actor = r.actorOrSystem(opts.Actor)
	if _, err := r.datasource.GetStatement(ctx, statementID); err != nil {
		return nil, err
	}
	run, err := r.startRun(ctx, statementID, opts)
	if err != nil {
		return nil, err
	}

	statementLock := redlock.NewLocker(r.redis, "recon:lock:statement:"+statementID, run.RunID)
	if err := statementLock.Lock(ctx, r.config.Reconciliation.LockTimeout); err != nil {
		err = r.lockError(err, "statement "+statementID+" is already being reconciled")
		r.finishRun(ctx, run, err)
		return nil, err
	}
	defer func() {
		if err := statementLock.Unlock(context.Background()); err != nil {
			logrus.Warnf("failed to release statement lock: %v", err)
		}
	}()

	result := &model.BatchResult{}
	err = r.processStatement(ctx, statementID, opts, run, result)
	r.finishRun(ctx, run, err)
	result.Run = *run
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	return result, nil
}

func (r *Recon) startRun(ctx context.Context, statementID string, opts ProcessOptions) (*model.ReconciliationRun, error) {
	if opts.RunID != "" {
		run, err := r.datasource.GetRun(ctx, opts.RunID)
		if err != nil {
			return nil, err
		}
		// A resumed run counts the statement afresh.
		run.Status = model.RunStatusInProgress
		run.Matched, run.Unmatched, run.Failed, run.Skipped = 0, 0, 0, 0
		run.CompletedAt = nil
		if err := r.datasource.UpdateRun(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}

	run := &model.ReconciliationRun{
		RunID:       model.GenerateUUIDWithSuffix("run"),
		StatementID: statementID,
		Status:      model.RunStatusInProgress,
		IsDryRun:    opts.DryRun,
		Actor:       opts.Actor,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.datasource.RecordRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// finishRun stores the final counters. It uses a fresh context so a
// cancelled batch still records its outcome.
func (r *Recon) finishRun(ctx context.Context, run *model.ReconciliationRun, runErr error) {
	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	run.Status = model.RunStatusCompleted
	if runErr != nil {
		run.Status = model.RunStatusFailed
		notification.NotifyError(fmt.Errorf("reconciliation run %s for statement %s failed: %w", run.RunID, run.StatementID, runErr))
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.datasource.UpdateRun(storeCtx, run); err != nil {
		logrus.Errorf("failed to update reconciliation run %s: %v", run.RunID, err)
	}
}

func (r *Recon) processStatement(ctx context.Context, statementID string, opts ProcessOptions, run *model.ReconciliationRun, result *model.BatchResult) error {
	lines, err := r.datasource.GetStatementLines(ctx, statementID)
	if err != nil {
		return err
	}
	existing, err := r.datasource.LinksForStatement(ctx, statementID)
	if err != nil {
		return err
	}
	linksByLine := groupLinks(existing)

	var pending []model.TransactionLine
	for _, line := range lines {
		if links := linksByLine[line.LineID]; len(links) > 0 {
			run.Skipped++
			result.Lines = append(result.Lines, model.LineOutcome{
				LineID:     line.LineID,
				LineNumber: line.LineNumber,
				Status:     model.LineStatusLinked,
				Depth:      model.DepthOf(links),
				Skipped:    true,
				Links:      links,
			})
			continue
		}
		pending = append(pending, line)
	}
	if len(pending) == 0 {
		return nil
	}

	rules, err := r.ActiveRules(ctx)
	if err != nil {
		return err
	}
	candidates, err := r.loadCandidates(ctx, model.CandidateFilter{})
	if err != nil {
		return err
	}

	scores, err := r.scoreLines(ctx, pending, rules, candidates)
	if err != nil {
		return err
	}

	claimed := make(map[string]bool)
	for i, line := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome := r.linkLine(ctx, line, scores[i], opts, claimed)
		switch {
		case outcome.Error != "":
			run.Failed++
		case outcome.Status == model.LineStatusLinked:
			run.Matched++
		default:
			run.Unmatched++
		}
		result.Lines = append(result.Lines, outcome)
	}
	return nil
}

// scoreLines runs the matcher over every line with a bounded worker pool.
// A malformed rule fails the batch since it would fail every line.
func (r *Recon) scoreLines(ctx context.Context, lines []model.TransactionLine, rules []model.Rule, candidates map[model.Family][]model.CandidateEntity) ([]matcher.Result, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Scoring lines")
	defer span.End()

	results := make([]matcher.Result, len(lines))
	thresholds := r.Thresholds()

	workers := r.config.Reconciliation.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range lines {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := matcher.Match(lines[i], rules, candidates, thresholds)
			if err != nil {
				return ruleError(err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// linkLine applies the decision policy to one scored line: each slot gets
// its best eligible candidate that is neither claimed in this batch nor
// already linked elsewhere.
func (r *Recon) linkLine(ctx context.Context, line model.TransactionLine, res matcher.Result, opts ProcessOptions, claimed map[string]bool) model.LineOutcome {
	outcome := model.LineOutcome{LineID: line.LineID, LineNumber: line.LineNumber}

	for _, slot := range []model.Slot{model.SlotInvoice, model.SlotPartner} {
		link, err := r.linkSlot(ctx, line, res.Eligible(slot), opts, claimed)
		if err != nil {
			logrus.WithFields(logrus.Fields{"line_id": line.LineID, "slot": slot}).Errorf("auto-link failed: %v", err)
			outcome.Error = err.Error()
			continue
		}
		if link != nil {
			outcome.Links = append(outcome.Links, *link)
		}
	}

	outcome.Depth = model.DepthOf(outcome.Links)
	switch {
	case len(outcome.Links) > 0:
		outcome.Status = model.LineStatusLinked
	case len(res.Suggestions()) > 0:
		outcome.Status = model.LineStatusSuggested
	default:
		outcome.Status = model.LineStatusUnmatched
	}
	if outcome.Status != model.LineStatusLinked {
		outcome.Suggestions = res.Suggestions()
	}
	return outcome
}

func (r *Recon) linkSlot(ctx context.Context, line model.TransactionLine, eligible []model.MatchCandidate, opts ProcessOptions, claimed map[string]bool) (*model.Link, error) {
	for _, candidate := range eligible {
		if candidate.Family == model.FamilyInvoice && claimed[candidate.EntityID] {
			continue
		}

		if opts.DryRun {
			markClaimed(claimed, candidate)
			return plannedLink(line, candidate, opts.Actor), nil
		}

		link, err := r.lockAndLink(ctx, model.LinkRequest{
			Line:     line,
			Family:   candidate.Family,
			EntityID: candidate.EntityID,
			Method:   model.LinkMethodAuto,
			Score:    candidate.TotalScore,
			Actor:    opts.Actor,
		})
		if apierror.Is(err, apierror.ErrConflict) {
			// Linked by another line or process since candidates were loaded.
			markClaimed(claimed, candidate)
			continue
		}
		if err != nil {
			return nil, err
		}
		markClaimed(claimed, candidate)
		return link, nil
	}
	return nil, nil
}

func markClaimed(claimed map[string]bool, candidate model.MatchCandidate) {
	if candidate.Family == model.FamilyInvoice {
		claimed[candidate.EntityID] = true
	}
}

func plannedLink(line model.TransactionLine, candidate model.MatchCandidate, actor string) *model.Link {
	return &model.Link{
		LineID:      line.LineID,
		StatementID: line.StatementID,
		Family:      candidate.Family,
		Slot:        candidate.Family.Slot(),
		EntityID:    candidate.EntityID,
		Method:      model.LinkMethodAuto,
		Score:       candidate.TotalScore,
		Actor:       actor,
		CreatedAt:   time.Now().UTC(),
	}
}

// lockAndLink creates a link while holding the entity lock, so two
// processes never settle the same entity concurrently.
func (r *Recon) lockAndLink(ctx context.Context, req model.LinkRequest) (*model.Link, error) {
	locker := redlock.NewLocker(r.redis, redlock.EntityKey(string(req.Family), req.EntityID), model.GenerateUUIDWithSuffix("lock"))
	cfg := r.config.Reconciliation
	if err := locker.WaitLock(ctx, cfg.LockTimeout, cfg.LockWait); err != nil {
		return nil, r.lockError(err, fmt.Sprintf("%s %s is being linked by another process", req.Family, req.EntityID))
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Warnf("failed to release lock %s: %v", locker.Key(), err)
		}
	}()
	return r.datasource.CreateLink(ctx, req)
}

func (r *Recon) lockError(err error, heldMessage string) error {
	if errors.Is(err, redlock.ErrLockHeld) {
		return apierror.NewAPIError(apierror.ErrConflict, heldMessage, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apierror.NewAPIError(apierror.ErrRepository, "failed to acquire lock", err)
}

func ruleError(err error) error {
	var ruleErr *matcher.RuleError
	if errors.As(err, &ruleErr) {
		return apierror.NewAPIError(apierror.ErrValidation, ruleErr.Error(), err)
	}
	return err
}

func groupLinks(links []model.Link) map[string][]model.Link {
	out := make(map[string][]model.Link)
	for _, l := range links {
		out[l.LineID] = append(out[l.LineID], l)
	}
	return out
}

// StatementStatus computes the state of every line from the ledger. It is
// never stored.
func (r *Recon) StatementStatus(ctx context.Context, statementID string) (*model.StatementState, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Computing statement status")
	defer span.End()

	stmt, err := r.datasource.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	lines, err := r.datasource.GetStatementLines(ctx, statementID)
	if err != nil {
		return nil, err
	}
	links, err := r.datasource.LinksForStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	byLine := groupLinks(links)

	state := &model.StatementState{Statement: *stmt, Lines: make([]model.LineState, 0, len(lines))}
	for _, line := range lines {
		ls := model.LineState{
			Line:   line,
			Status: model.LineStatusUnmatched,
			Depth:  model.DepthOf(byLine[line.LineID]),
			Links:  byLine[line.LineID],
		}
		switch ls.Depth {
		case model.DepthFull:
			ls.Status = model.LineStatusLinked
			state.Linked++
			state.Full++
		case model.DepthPartial:
			ls.Status = model.LineStatusLinked
			state.Linked++
			state.Partial++
		default:
			state.Unmatched++
		}
		state.Lines = append(state.Lines, ls)
	}
	return state, nil
}

// Suggest scores one line for manual review and returns every candidate
// with a positive score, best first.
func (r *Recon) Suggest(ctx context.Context, lineID string) ([]model.MatchCandidate, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Suggesting candidates")
	defer span.End()

	line, err := r.datasource.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	rules, err := r.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := r.loadCandidates(ctx, model.CandidateFilter{})
	if err != nil {
		return nil, err
	}
	res, err := matcher.Match(*line, rules, candidates, r.Thresholds())
	if err != nil {
		return nil, ruleError(err)
	}
	suggestions := res.Suggestions()
	if suggestions == nil {
		suggestions = []model.MatchCandidate{}
	}
	return suggestions, nil
}

func (r *Recon) GetRun(ctx context.Context, id string) (*model.ReconciliationRun, error) {
	return r.datasource.GetRun(ctx, id)
}

func (r *Recon) RunsForStatement(ctx context.Context, statementID string) ([]model.ReconciliationRun, error) {
	return r.datasource.RunsForStatement(ctx, statementID)
}
