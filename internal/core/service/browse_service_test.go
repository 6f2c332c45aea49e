package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/testkit/storefakes"
)

type recordingRenderer struct {
	mu       sync.Mutex
	pages    chan domain.Page
	acks     []domain.Signal
	torn     chan struct{}
	failNext bool
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{
		pages: make(chan domain.Page, 32),
		torn:  make(chan struct{}),
	}
}

func (r *recordingRenderer) Render(_ context.Context, page domain.Page) error {
	r.mu.Lock()
	fail := r.failNext
	r.failNext = false
	r.mu.Unlock()
	if fail {
		return errors.New("render failed")
	}
	r.pages <- page
	return nil
}

func (r *recordingRenderer) Acknowledge(_ context.Context, sig domain.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, sig)
	return nil
}

func (r *recordingRenderer) Teardown(_ context.Context) error {
	close(r.torn)
	return nil
}

func (r *recordingRenderer) next(t *testing.T) domain.Page {
	t.Helper()
	select {
	case p := <-r.pages:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a render")
	}
	return domain.Page{}
}

func catalogOf(n int) *storefakes.Catalog {
	var items []domain.Item
	for i := 1; i <= n; i++ {
		items = append(items, domain.Item{GuildID: testGuild, Name: fmt.Sprintf("item-%d", i), Cost: int64(i), Max: 1})
	}
	return storefakes.NewCatalog(items...)
}

func openSession(t *testing.T, items int, idle time.Duration) (*BrowseService, *Session, *recordingRenderer) {
	t.Helper()
	svc := NewBrowseService(catalogOf(items), idle)
	t.Cleanup(svc.Close)

	r := newRecordingRenderer()
	s, err := svc.Open(context.Background(), testGuild, testUser, r)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	first := r.next(t)
	if first.Position != 1 || first.Total != items || first.Item.Name != "item-1" {
		t.Fatalf("unexpected first page: %+v", first)
	}
	return svc, s, r
}

func send(t *testing.T, svc *BrowseService, s *Session, kind domain.SignalKind, user string) {
	t.Helper()
	if err := svc.Dispatch(context.Background(), s.ID(), domain.Signal{Kind: kind, SourceUserID: user}); err != nil {
		t.Fatalf("dispatch %s failed: %v", kind, err)
	}
}

func TestBrowse_EmptyCatalog(t *testing.T) {
	svc := NewBrowseService(catalogOf(0), time.Second)
	defer svc.Close()

	_, err := svc.Open(context.Background(), testGuild, testUser, newRecordingRenderer())
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("expected ErrEmptyCatalog, got: %v", err)
	}
	if svc.Active() != 0 {
		t.Error("no session should be registered")
	}
}

func TestBrowse_Navigation(t *testing.T) {
	svc, s, r := openSession(t, 3, time.Minute)

	steps := []struct {
		kind domain.SignalKind
		want int
	}{
		{domain.SignalPrev, 1}, // at lower bound
		{domain.SignalNext, 2},
		{domain.SignalNext, 3},
		{domain.SignalNext, 3}, // at upper bound
		{domain.SignalFirst, 1},
		{domain.SignalLast, 3},
		{domain.SignalFirst, 1},
	}
	for _, step := range steps {
		send(t, svc, s, step.kind, testUser)
		page := r.next(t)
		if page.Position != step.want {
			t.Errorf("%s: expected cursor %d, got %d", step.kind, step.want, page.Position)
		}
		if page.Footer() != fmt.Sprintf("%d of 3", step.want) {
			t.Errorf("unexpected footer %q", page.Footer())
		}
		if page.Item.Name != fmt.Sprintf("item-%d", step.want) {
			t.Errorf("expected item-%d, got %s", step.want, page.Item.Name)
		}
	}
	if s.Cursor() != 1 {
		t.Errorf("expected cursor 1, got %d", s.Cursor())
	}
}

func TestBrowse_IgnoresForeignAndUnknownSignals(t *testing.T) {
	svc, s, r := openSession(t, 3, time.Minute)

	send(t, svc, s, domain.SignalNext, "someone-else")
	send(t, svc, s, domain.SignalOther, testUser)
	send(t, svc, s, domain.SignalNext, testUser)

	page := r.next(t)
	if page.Position != 2 {
		t.Errorf("expected only the owner's next to count, got cursor %d", page.Position)
	}

	select {
	case <-s.Done():
		t.Fatal("ignored signals must not end the session")
	default:
	}

	// the loop only receives once the previous signal is fully handled
	send(t, svc, s, domain.SignalLast, "someone-else")

	r.mu.Lock()
	acks := len(r.acks)
	r.mu.Unlock()
	if acks != 2 {
		t.Errorf("expected 2 acknowledged owner signals, got %d", acks)
	}
}

func TestBrowse_IdleTimeoutTearsDown(t *testing.T) {
	svc, s, r := openSession(t, 2, 50*time.Millisecond)

	select {
	case <-r.torn:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not time out")
	}
	<-s.Done()

	err := s.Send(context.Background(), domain.Signal{Kind: domain.SignalNext, SourceUserID: testUser})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for svc.Active() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.Active() != 0 {
		t.Error("expired session should be unregistered")
	}
	if err := svc.Dispatch(context.Background(), s.ID(), domain.Signal{Kind: domain.SignalNext}); !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected dispatch to a closed session to fail, got: %v", err)
	}
}

func TestBrowse_OwnerSignalExtendsWindow(t *testing.T) {
	svc, s, r := openSession(t, 2, 150*time.Millisecond)

	for i := 0; i < 4; i++ {
		time.Sleep(75 * time.Millisecond)
		send(t, svc, s, domain.SignalNext, testUser)
		r.next(t)
	}

	select {
	case <-s.Done():
		t.Fatal("session should still be alive while the owner keeps navigating")
	default:
	}
}

func TestBrowse_ForeignSignalsDoNotExtendWindow(t *testing.T) {
	svc, s, r := openSession(t, 2, 150*time.Millisecond)

	stop := time.After(400 * time.Millisecond)
	for {
		select {
		case <-r.torn:
			return
		case <-stop:
			t.Fatal("foreign signals kept the session alive")
		case <-time.After(20 * time.Millisecond):
			_ = svc.Dispatch(context.Background(), s.ID(), domain.Signal{Kind: domain.SignalNext, SourceUserID: "intruder"})
		}
	}
}

func TestBrowse_RenderFailureKeepsSession(t *testing.T) {
	svc, s, r := openSession(t, 3, time.Minute)

	r.mu.Lock()
	r.failNext = true
	r.mu.Unlock()
	send(t, svc, s, domain.SignalNext, testUser)
	send(t, svc, s, domain.SignalNext, testUser)

	if page := r.next(t); page.Position != 3 {
		t.Errorf("expected cursor 3, got %d", page.Position)
	}
}

func TestBrowse_CloseTearsDownSessions(t *testing.T) {
	svc := NewBrowseService(catalogOf(2), time.Minute)
	r := newRecordingRenderer()
	s, err := svc.Open(context.Background(), testGuild, testUser, r)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	svc.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("Close should wait for sessions to end")
	}
	select {
	case <-r.torn:
	default:
		t.Error("expected teardown on close")
	}
}
