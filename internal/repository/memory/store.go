// Package memory provides process-local implementations of the repository
// interfaces. It backs development runs without Postgres and the service
// and projector tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/repository"
)

// Store keeps tickets, the activity feed, subscriptions and read models in
// memory. It is safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	clock         clock.Clock
	tickets       map[string]*domain.Ticket
	feed          []repository.FeedEntry
	eventIDs      map[string]struct{}
	readModels    map[string]*domain.TicketReadModel
	subscriptions map[string]*repository.Subscription
	appended      chan struct{}
}

var (
	_ repository.TicketRepository    = (*Store)(nil)
	_ repository.ActivityRepository  = (*Store)(nil)
	_ repository.ReadModelRepository = (*Store)(nil)
	_ repository.FeedRepository      = (*Store)(nil)
)

// NewStore creates an empty store. clk drives lease expiry and waits.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		clock:         clk,
		tickets:       make(map[string]*domain.Ticket),
		eventIDs:      make(map[string]struct{}),
		readModels:    make(map[string]*domain.TicketReadModel),
		subscriptions: make(map[string]*repository.Subscription),
		appended:      make(chan struct{}),
	}
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) Create(_ context.Context, ticket *domain.Ticket, evt events.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := s.eventIDs[evt.ID]; ok {
		return repository.ErrConflict
	}
	stored := ticket.Clone()
	stored.Version = 1
	s.tickets[ticket.ID] = stored
	s.appendLocked(evt)
	ticket.Version = 1
	return nil
}

func (s *Store) Update(_ context.Context, ticket *domain.Ticket, evt events.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tickets[ticket.ID]
	if !ok || current.Version != ticket.Version {
		return repository.ErrConflict
	}
	if _, ok := s.eventIDs[evt.ID]; ok {
		return repository.ErrConflict
	}
	stored := ticket.Clone()
	stored.Version = ticket.Version + 1
	s.tickets[ticket.ID] = stored
	s.appendLocked(evt)
	ticket.Version++
	return nil
}

func (s *Store) Append(_ context.Context, evt events.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventIDs[evt.ID]; ok {
		return repository.ErrConflict
	}
	s.appendLocked(evt)
	return nil
}

func (s *Store) appendLocked(evt events.ActivityEvent) {
	evt.Payload = maps.Clone(evt.Payload)
	s.feed = append(s.feed, repository.FeedEntry{Position: int64(len(s.feed) + 1), Event: evt})
	s.eventIDs[evt.ID] = struct{}{}
	close(s.appended)
	s.appended = make(chan struct{})
}

func (s *Store) ListByTicket(_ context.Context, filter repository.TimelineFilter) ([]events.ActivityEvent, error) {
	s.mu.Lock()
	var matched []events.ActivityEvent
	for _, entry := range s.feed {
		if entry.Event.TicketID == filter.TicketID && entry.Event.SortKey > filter.AfterSortKey {
			matched = append(matched, entry.Event)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].SortKey < matched[j].SortKey })
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) GetByTicketID(_ context.Context, ticketID string) (*domain.TicketReadModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.readModels[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) Inbox(_ context.Context, filter repository.InboxFilter) ([]domain.TicketReadModel, error) {
	terms := searchTerms(filter.Query)

	s.mu.Lock()
	var matched []domain.TicketReadModel
	for _, m := range s.readModels {
		if filter.CustomerID != "" && m.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.BeforeSortKey != "" && m.SortKey >= filter.BeforeSortKey {
			continue
		}
		if !containsTerms(m.Subject, terms) {
			continue
		}
		matched = append(matched, *m.Clone())
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].SortKey > matched[j].SortKey })
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func searchTerms(q string) []string {
	return strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsTerms(subject string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	words := make(map[string]struct{})
	for _, w := range searchTerms(subject) {
		words[w] = struct{}{}
	}
	for _, term := range terms {
		if _, ok := words[term]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) EnsureSubscription(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[name]; !ok {
		s.subscriptions[name] = &repository.Subscription{Name: name}
	}
	return nil
}

func (s *Store) AcquireLease(_ context.Context, name, owner string, ttl time.Duration) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[name]
	if !ok {
		return repository.Subscription{}, repository.ErrNotFound
	}
	now := s.clock.Now()
	if sub.LeaseOwner != "" && sub.LeaseOwner != owner && sub.LeaseExpiresAt.After(now) {
		return repository.Subscription{}, repository.ErrLeaseHeld
	}
	sub.LeaseOwner = owner
	sub.LeaseExpiresAt = now.Add(ttl)
	return *sub, nil
}

func (s *Store) ReleaseLease(_ context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscriptions[name]; ok && sub.LeaseOwner == owner {
		sub.LeaseOwner = ""
		sub.LeaseExpiresAt = time.Time{}
	}
	return nil
}

func (s *Store) ReadBatch(_ context.Context, after int64, limit int) ([]repository.FeedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.feed)) {
		return nil, nil
	}
	end := len(s.feed)
	if limit > 0 && int(after)+limit < end {
		end = int(after) + limit
	}
	out := make([]repository.FeedEntry, end-int(after))
	copy(out, s.feed[after:end])
	return out, nil
}

func (s *Store) LoadReadModels(_ context.Context, ticketIDs []string) (map[string]*domain.TicketReadModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.TicketReadModel, len(ticketIDs))
	for _, id := range ticketIDs {
		if m, ok := s.readModels[id]; ok {
			out[id] = m.Clone()
		}
	}
	return out, nil
}

// Commit runs commit.Stage with a nil tx while holding the store lock, so
// Stage must not call back into the store.
func (s *Store) Commit(ctx context.Context, commit repository.FeedCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[commit.Subscription]
	if !ok || sub.LeaseOwner != commit.Owner || sub.Position != commit.From {
		return repository.ErrLeaseLost
	}
	if commit.Stage != nil {
		if err := commit.Stage(ctx, nil); err != nil {
			return err
		}
	}
	sub.Position = commit.To
	sub.LeaseExpiresAt = s.clock.Now().Add(commit.LeaseTTL)
	for _, m := range commit.Rows {
		s.readModels[m.TicketID] = m.Clone()
	}
	return nil
}

func (s *Store) WaitForEvents(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	appended := s.appended
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-appended:
		return nil
	case <-s.clock.After(timeout):
		return nil
	}
}

func (s *Store) Reset(_ context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[name]
	if !ok || sub.LeaseOwner != owner {
		return repository.ErrLeaseLost
	}
	sub.Position = 0
	s.readModels = make(map[string]*domain.TicketReadModel)
	return nil
}

// Subscription returns a copy of the named subscription.
func (s *Store) Subscription(name string) (repository.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[name]
	if !ok {
		return repository.Subscription{}, false
	}
	return *sub, true
}

// Events returns every appended event in feed order.
func (s *Store) Events() []events.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.ActivityEvent, 0, len(s.feed))
	for _, entry := range s.feed {
		out = append(out, entry.Event)
	}
	return out
}
