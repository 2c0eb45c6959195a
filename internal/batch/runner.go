// Package batch implements the weekly shopping-list recompute loop: it pages
// through active users in bounded batches, rebuilds each user's list and
// hands it to a notifier. Delivery itself stays outside this module.
package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mealweek/internal/database"
	"mealweek/internal/metrics"
	"mealweek/internal/profile"
	"mealweek/internal/shared"
	"mealweek/internal/shopping"
)

// Notifier receives one user's freshly built list.
type Notifier interface {
	NotifyList(ctx context.Context, userID int64, list *shopping.Result) error
}

// LogNotifier logs list summaries instead of delivering them.
type LogNotifier struct{}

// NotifyList implements Notifier.
func (LogNotifier) NotifyList(_ context.Context, userID int64, list *shopping.Result) error {
	log.Printf("user %d: shopping list ready, %d items, %d warnings", userID, len(list.Items), len(list.Warnings))
	return nil
}

// Run is the persisted record of one batch execution.
type Run struct {
	ID             string
	WeekStart      time.Time
	Started        time.Time
	Finished       time.Time
	UsersProcessed int
	Failures       int
}

// Runner drives a weekly recompute over all active users.
type Runner struct {
	db       *database.DB
	users    *profile.Repository
	agg      *shopping.Aggregator
	notifier Notifier
	pageSize int
}

// NewRunner creates a batch runner that pages users pageSize at a time.
func NewRunner(d *database.DB, users *profile.Repository, agg *shopping.Aggregator, notifier Notifier, pageSize int) *Runner {
	if pageSize < 1 {
		pageSize = 100
	}
	return &Runner{db: d, users: users, agg: agg, notifier: notifier, pageSize: pageSize}
}

// Run rebuilds and delivers the week's list for every active user. A failure
// on one user is logged and counted but never aborts the remaining users;
// only a cancelled context or a failing user-page query stops the run early.
func (r *Runner) Run(ctx context.Context, weekStart time.Time) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		WeekStart: shared.WeekStart(weekStart),
		Started:   time.Now().UTC(),
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(
		"INSERT INTO batch_runs (id, week_start, started) VALUES (?, ?, ?)"),
		run.ID, shared.FormatDate(run.WeekStart), run.Started)
	if err != nil {
		return nil, fmt.Errorf("failed to record batch run: %w", err)
	}

	afterID := int64(0)
	for {
		ids, err := r.users.ListActive(ctx, afterID, r.pageSize)
		if err != nil {
			return run, fmt.Errorf("failed to page active users: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		for _, userID := range ids {
			if err := ctx.Err(); err != nil {
				return run, err
			}
			err := r.processUser(ctx, userID, run.WeekStart)
			metrics.BatchUser(err)
			run.UsersProcessed++
			if err != nil {
				run.Failures++
				log.Printf("batch %s: user %d failed: %v", run.ID, userID, err)
			}
		}
	}

	run.Finished = time.Now().UTC()
	_, err = r.db.SQL.ExecContext(ctx, r.db.Rebind(
		"UPDATE batch_runs SET finished = ?, users_processed = ?, failures = ? WHERE id = ?"),
		run.Finished, run.UsersProcessed, run.Failures, run.ID)
	if err != nil {
		return run, fmt.Errorf("failed to finalize batch run: %w", err)
	}
	return run, nil
}

func (r *Runner) processUser(ctx context.Context, userID int64, weekStart time.Time) error {
	list, err := r.agg.BuildList(ctx, userID, weekStart)
	if err != nil {
		return fmt.Errorf("failed to build list: %w", err)
	}
	if err := r.notifier.NotifyList(ctx, userID, list); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}
