// Package projection folds the activity feed into ticket read models.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/observability"
	"github.com/supportdesk/ticket-lifecycle/internal/repository"
)

// ErrLeaseLost is returned when another instance took over the subscription
// between reading a batch and committing it.
var ErrLeaseLost = repository.ErrLeaseLost

// Outbox stages side effects of applied events in the same transaction
// that advances the checkpoint. A staging error aborts the batch, which is
// then redelivered.
type Outbox interface {
	Stage(ctx context.Context, tx pgx.Tx, evts []events.ActivityEvent) error
}

// Options tunes a Projector.
type Options struct {
	Subscription string
	Owner        string
	BatchSize    int
	PollInterval time.Duration
	RetryBackoff time.Duration
	LeaseTTL     time.Duration
}

// Projector is the single logical consumer of the activity feed for one
// subscription name. Several instances may run; the subscription lease lets
// only one of them fold at a time.
type Projector struct {
	feed       repository.FeedRepository
	dispatcher events.Dispatcher
	outbox     Outbox
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	opts       Options
}

// Dependencies bundles collaborators for the projector.
type Dependencies struct {
	Feed       repository.FeedRepository
	Dispatcher events.Dispatcher
	Outbox     Outbox
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// New constructs a projector. A nil dispatcher disables post-commit
// publication and a nil outbox disables staging.
func New(deps Dependencies, opts Options) *Projector {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Subscription == "" {
		opts.Subscription = "ticket-read-models"
	}
	if opts.Owner == "" {
		opts.Owner = "projector-" + uuid.NewString()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Second
	}
	return &Projector{
		feed:       deps.Feed,
		dispatcher: deps.Dispatcher,
		outbox:     deps.Outbox,
		clock:      deps.Clock,
		logger:     deps.Logger.With(zap.String("subscription", opts.Subscription), zap.String("owner", opts.Owner)),
		metrics:    deps.Metrics,
		opts:       opts,
	}
}

// Step folds at most one batch. It returns the number of feed entries
// consumed; zero means the subscription is caught up.
func (p *Projector) Step(ctx context.Context) (int, error) {
	sub, err := p.feed.AcquireLease(ctx, p.opts.Subscription, p.opts.Owner, p.opts.LeaseTTL)
	if err != nil {
		return 0, err
	}
	batch, err := p.feed.ReadBatch(ctx, sub.Position, p.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read feed after %d: %w", sub.Position, err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, entry := range batch {
		if _, ok := seen[entry.Event.TicketID]; ok {
			continue
		}
		seen[entry.Event.TicketID] = struct{}{}
		ids = append(ids, entry.Event.TicketID)
	}
	rows, err := p.feed.LoadReadModels(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load read models: %w", err)
	}

	var (
		touched    = make(map[string]*domain.TicketReadModel)
		dispatch   = make([]events.ActivityEvent, 0, len(batch))
		duplicates int
	)
	for _, entry := range batch {
		evt := entry.Event
		if evt.Type == events.EventRejectedTransition {
			dispatch = append(dispatch, evt)
			continue
		}
		row, ok := rows[evt.TicketID]
		if !ok {
			row = domain.NewTicketReadModel(evt.TicketID)
		}
		switch Apply(row, evt) {
		case Applied:
			rows[evt.TicketID] = row
			touched[evt.TicketID] = row
			dispatch = append(dispatch, evt)
		case Duplicate:
			duplicates++
		case Ignored:
			p.logger.Debug("ignoring event type", zap.String("type", string(evt.Type)), zap.String("event_id", evt.ID))
		}
	}

	changed := make([]*domain.TicketReadModel, 0, len(touched))
	for _, row := range touched {
		changed = append(changed, row)
	}
	last := batch[len(batch)-1].Position
	commit := repository.FeedCommit{
		Subscription: p.opts.Subscription,
		Owner:        p.opts.Owner,
		From:         sub.Position,
		To:           last,
		LeaseTTL:     p.opts.LeaseTTL,
		Rows:         changed,
	}
	if p.outbox != nil && len(dispatch) > 0 {
		commit.Stage = func(ctx context.Context, tx pgx.Tx) error {
			return p.outbox.Stage(ctx, tx, dispatch)
		}
	}
	if err := p.feed.Commit(ctx, commit); err != nil {
		return 0, fmt.Errorf("commit batch %d..%d: %w", sub.Position, last, err)
	}

	p.metrics.RecordProjectorBatch(len(batch), len(changed), duplicates)
	p.logger.Debug("batch projected",
		zap.Int64("from", sub.Position),
		zap.Int64("to", last),
		zap.Int("events", len(batch)),
		zap.Int("rows", len(changed)),
		zap.Int("duplicates", duplicates),
	)
	p.publish(ctx, dispatch)
	return len(batch), nil
}

func (p *Projector) publish(ctx context.Context, evts []events.ActivityEvent) {
	if p.dispatcher == nil {
		return
	}
	for _, evt := range evts {
		if err := p.dispatcher.Publish(ctx, evt); err != nil {
			p.logger.Warn("event handler failed", zap.String("event_id", evt.ID), zap.Error(err))
		}
	}
}

// Run consumes the feed until ctx is cancelled. Failures are logged and
// retried after RetryBackoff; cancellation is only observed between
// batches.
func (p *Projector) Run(ctx context.Context) error {
	p.logger.Info("projector started")
	defer p.release()

	registered := false
	for {
		if ctx.Err() != nil {
			p.logger.Info("projector stopped")
			return nil
		}

		if !registered {
			if err := p.feed.EnsureSubscription(ctx, p.opts.Subscription); err != nil {
				p.fail(ctx, "register subscription", err)
				continue
			}
			registered = true
		}

		n, err := p.Step(ctx)
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, repository.ErrLeaseHeld):
			p.logger.Debug("lease held elsewhere; standing by")
			p.sleep(ctx, p.opts.PollInterval)
		case errors.Is(err, repository.ErrNotFound):
			p.logger.Warn("subscription disappeared; registering again")
			registered = false
		case err != nil:
			p.fail(ctx, "project batch", err)
		case n == 0:
			if err := p.feed.WaitForEvents(ctx, p.opts.PollInterval); err != nil && ctx.Err() == nil {
				p.fail(ctx, "wait for events", err)
			}
		}
	}
}

// Rebuild rewinds the subscription, clears the read models and folds the
// whole feed again. It returns the number of feed entries replayed.
func (p *Projector) Rebuild(ctx context.Context) (int, error) {
	if err := p.feed.EnsureSubscription(ctx, p.opts.Subscription); err != nil {
		return 0, fmt.Errorf("register subscription: %w", err)
	}
	if _, err := p.feed.AcquireLease(ctx, p.opts.Subscription, p.opts.Owner, p.opts.LeaseTTL); err != nil {
		return 0, fmt.Errorf("acquire lease: %w", err)
	}
	defer p.release()

	if err := p.feed.Reset(ctx, p.opts.Subscription, p.opts.Owner); err != nil {
		return 0, fmt.Errorf("reset subscription: %w", err)
	}
	p.logger.Info("read models cleared; replaying feed")

	total := 0
	for {
		n, err := p.Step(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			p.logger.Info("rebuild complete", zap.Int("events", total))
			return total, nil
		}
		total += n
	}
}

// CatchUp folds batches until the subscription has no pending events.
func (p *Projector) CatchUp(ctx context.Context) (int, error) {
	if err := p.feed.EnsureSubscription(ctx, p.opts.Subscription); err != nil {
		return 0, fmt.Errorf("register subscription: %w", err)
	}
	total := 0
	for {
		n, err := p.Step(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

func (p *Projector) fail(ctx context.Context, op string, err error) {
	p.metrics.RecordProjectorFailure()
	p.logger.Error("projector "+op+" failed", zap.Error(err), zap.Duration("retry_in", p.opts.RetryBackoff))
	p.sleep(ctx, p.opts.RetryBackoff)
}

func (p *Projector) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-p.clock.After(d):
	}
}

func (p *Projector) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.feed.ReleaseLease(ctx, p.opts.Subscription, p.opts.Owner); err != nil {
		p.logger.Warn("release lease", zap.Error(err))
	}
}
