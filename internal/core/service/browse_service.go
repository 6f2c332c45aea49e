package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/port"
)

var (
	ErrEmptyCatalog    = errors.New("guild has no items")
	ErrSessionClosed   = errors.New("browsing session closed")
	ErrSessionNotFound = errors.New("browsing session not found")
)

const (
	DefaultIdleTimeout = 60 * time.Second
	teardownTimeout    = 5 * time.Second
)

// BrowseService owns the live browsing sessions. Sessions run on the
// service's own context, not the caller's, so they outlive the request that
// opened them; Close ends them all.
type BrowseService struct {
	catalog     port.CatalogRepository
	idleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewBrowseService(catalog port.CatalogRepository, idleTimeout time.Duration) *BrowseService {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BrowseService{
		catalog:     catalog,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
	}
}

// Open loads the guild's items, renders the first one and starts the
// session. A guild without items gets ErrEmptyCatalog and no session.
func (b *BrowseService) Open(ctx context.Context, guildID, userID string, renderer port.PageRenderer) (*Session, error) {
	items, err := b.catalog.FindItems(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}

	s := newSession(uuid.NewString(), domain.NewOwnerKey(guildID, userID), items, b.idleTimeout, renderer)

	// registered first so a signal sent in reply to the first page finds it
	b.mu.Lock()
	b.sessions[s.id] = s
	b.mu.Unlock()

	if err := renderer.Render(ctx, s.page()); err != nil {
		b.mu.Lock()
		delete(b.sessions, s.id)
		b.mu.Unlock()
		return nil, fmt.Errorf("render first page: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		s.run(b.ctx)
		b.mu.Lock()
		delete(b.sessions, s.id)
		b.mu.Unlock()
	}()

	log.Printf("[Browse] session %s opened for %s (%d items)", s.id, s.owner, len(items))
	return s, nil
}

// Dispatch forwards a navigation signal to a live session.
func (b *BrowseService) Dispatch(ctx context.Context, sessionID string, signal domain.Signal) error {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.Send(ctx, signal)
}

func (b *BrowseService) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Close tears down every live session and waits for them to finish.
func (b *BrowseService) Close() {
	b.cancel()
	b.wg.Wait()
}

// Session is a single-cursor view over an ordered item list. Only the
// cursor changes after creation.
type Session struct {
	id          string
	owner       domain.OwnerKey
	items       []domain.Item
	idleTimeout time.Duration
	renderer    port.PageRenderer

	signals chan domain.Signal
	done    chan struct{}

	mu     sync.Mutex
	cursor int
}

func newSession(id string, owner domain.OwnerKey, items []domain.Item, idleTimeout time.Duration, renderer port.PageRenderer) *Session {
	return &Session{
		id:          id,
		owner:       owner,
		items:       items,
		idleTimeout: idleTimeout,
		renderer:    renderer,
		signals:     make(chan domain.Signal),
		done:        make(chan struct{}),
		cursor:      1,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Done is closed once the view has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send hands a signal to the session. It blocks until the session takes it.
func (s *Session) Send(ctx context.Context, signal domain.Signal) error {
	select {
	case s.signals <- signal:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// move applies a navigation kind. It returns false for kinds that are not
// navigation; bounds are silent no-ops that still count as accepted.
func (s *Session) move(kind domain.SignalKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	switch kind {
	case domain.SignalNext:
		if s.cursor < n {
			s.cursor++
		}
	case domain.SignalPrev:
		if s.cursor > 1 {
			s.cursor--
		}
	case domain.SignalFirst:
		s.cursor = 1
	case domain.SignalLast:
		s.cursor = n
	default:
		return false
	}
	return true
}

func (s *Session) page() domain.Page {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	item := s.items[cursor-1]
	return domain.Page{
		SessionID: s.id,
		Item:      item,
		Owned:     item.Owned(s.owner),
		Position:  cursor,
		Total:     len(s.items),
	}
}

// run waits for signals until one idle window passes without a signal from
// the owner. Signals from other users neither move the cursor nor extend
// the window.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.teardown("shutdown")
			return
		case <-timer.C:
			s.teardown("idle timeout")
			return
		case sig := <-s.signals:
			if sig.SourceUserID != s.owner.UserID {
				continue
			}
			timer.Reset(s.idleTimeout)

			if s.move(sig.Kind) {
				if err := s.renderer.Render(ctx, s.page()); err != nil {
					log.Printf("[Browse] session %s: render failed: %v", s.id, err)
				}
			}
			if err := s.renderer.Acknowledge(ctx, sig); err != nil {
				log.Printf("[Browse] session %s: acknowledge failed: %v", s.id, err)
			}
		}
	}
}

func (s *Session) teardown(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := s.renderer.Teardown(ctx); err != nil {
		log.Printf("[Browse] session %s: teardown failed: %v", s.id, err)
		return
	}
	log.Printf("[Browse] session %s closed (%s)", s.id, reason)
}
