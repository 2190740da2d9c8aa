package comment

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Comment is a PR/issue comment at a point in time.
type Comment struct {
	ID    int64
	Body  string
	Login string
}

// Store is the remote comment store the updater writes through.
type Store interface {
	// Get fetches a comment by id. A (nil, nil) return means the
	// comment does not exist; that is not an error.
	Get(ctx context.Context, id int64) (*Comment, error)
	// Edit overwrites the comment body.
	Edit(ctx context.Context, id int64, body string) error
}

// RetryPolicy bounds how often a remote call is attempted.
// MaxAttempts is the total attempt budget, not the number of retries
// after the first try. Backoff, when set, returns the pause before the
// given attempt (2, 3, ...); a nil Backoff retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy retries immediately up to 3 total attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultRetryPolicy.MaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) wait(attempt int) {
	if p.Backoff == nil {
		return
	}
	if d := p.Backoff(attempt); d > 0 {
		time.Sleep(d)
	}
}

// Updater appends text to remote comments, tolerating transient store
// failures. Fetch and write each get their own attempt budget from the
// same policy.
type Updater struct {
	store  Store
	policy RetryPolicy
	logger *slog.Logger
}

// NewUpdater creates an updater writing through store.
func NewUpdater(store Store, policy RetryPolicy, logger *slog.Logger) *Updater {
	return &Updater{
		store:  store,
		policy: policy,
		logger: logger.With("component", "comment-updater"),
	}
}

// Append fetches the comment and overwrites its body with body+suffix.
//
// A comment that has disappeared is a benign race (deleted between
// discovery and update): it is logged and treated as success. Failures
// that survive the retry budget are returned to the caller unmodified
// in meaning; nothing is written in that case.
func (u *Updater) Append(ctx context.Context, id int64, suffix string) error {
	cmnt, err := u.fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch comment %d: %w", id, err)
	}
	if cmnt == nil {
		u.logger.Info(fmt.Sprintf("no comment with id %d, skipping update '%s'", id, suffix))
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= u.policy.attempts(); attempt++ {
		if attempt > 1 {
			u.policy.wait(attempt)
			// The comment body may be stale after a failed write;
			// re-fetch before trying again.
			cmnt, lastErr = u.store.Get(ctx, id)
			if lastErr != nil {
				continue
			}
			if cmnt == nil {
				u.logger.Info(fmt.Sprintf("no comment with id %d, skipping update '%s'", id, suffix))
				return nil
			}
		}

		lastErr = u.store.Edit(ctx, id, cmnt.Body+suffix)
		if lastErr == nil {
			return nil
		}
		u.logger.Warn("comment edit failed",
			"comment_id", id, "attempt", attempt, "error", lastErr)
	}

	return fmt.Errorf("failed to edit comment %d: %w", id, lastErr)
}

// fetch retrieves the comment, retrying transient failures until the
// attempt budget is spent.
func (u *Updater) fetch(ctx context.Context, id int64) (*Comment, error) {
	var lastErr error
	for attempt := 1; attempt <= u.policy.attempts(); attempt++ {
		if attempt > 1 {
			u.policy.wait(attempt)
		}

		cmnt, err := u.store.Get(ctx, id)
		if err == nil {
			return cmnt, nil
		}
		lastErr = err
		u.logger.Warn("comment fetch failed",
			"comment_id", id, "attempt", attempt, "error", err)
	}
	return nil, lastErr
}
