package channel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"practicum/internal/platformtest"
	"practicum/pkg/types"
)

// fakeUsers is a hand-written UserSource whose transitions are driven by the test.
type fakeUsers struct {
	mu        sync.Mutex
	user      *types.User
	observers map[int]func(*types.User)
	next      int
}

func newFakeUsers(user *types.User) *fakeUsers {
	return &fakeUsers{user: user, observers: make(map[int]func(*types.User))}
}

func (f *fakeUsers) CurrentUser() *types.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil
	}
	u := *f.user
	return &u
}

func (f *fakeUsers) Subscribe(fn func(*types.User)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.observers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers, id)
	}
}

func (f *fakeUsers) Set(user *types.User) {
	f.mu.Lock()
	f.user = user
	fns := make([]func(*types.User), 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

func startService(t *testing.T, users *fakeUsers, notifier *platformtest.Notifier) *Service {
	t.Helper()
	svc := NewService(users, testOptions(notifier.URL()))
	if err := svc.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func hasLeave(userID int64) func([]platformtest.Frame) bool {
	return func(frames []platformtest.Frame) bool {
		for _, f := range frames {
			if f.Event == types.EventLeaveSubmissionRoom && f.UserID == userID {
				return true
			}
		}
		return false
	}
}

func TestService_OpensChannelForCurrentUser(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := NewService(users, testOptions(notifier.URL()))

	status := &statusLog{}
	cancel := svc.OnStatusChange(status.record)
	defer cancel()

	if err := svc.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	defer func() { _ = svc.Close(context.Background()) }()

	waitUntil(t, 3*time.Second, svc.Connected, "connected flag")
	if n := notifier.Count(types.EventJoinSubmissionRoom, 1); n != 1 {
		t.Errorf("Expected one join for user 1, got %d", n)
	}
	if id := svc.CurrentUserID(); id != 1 {
		t.Errorf("Expected current user 1, got %d", id)
	}
	waitUntil(t, time.Second, func() bool { return len(status.snapshot()) > 0 }, "status notification")
	if states := status.snapshot(); len(states) != 1 || !states[0] {
		t.Errorf("Expected a single connected transition, got %v", states)
	}
}

func TestService_AnonymousStaysDisconnected(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	svc := startService(t, newFakeUsers(nil), notifier)

	time.Sleep(100 * time.Millisecond)
	if svc.Connected() {
		t.Error("Expected no channel without a user")
	}
	if frames := notifier.Frames(); len(frames) != 0 {
		t.Errorf("Expected no frames, got %+v", frames)
	}
}

func TestService_SameUserKeepsConnection(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := startService(t, users, notifier)
	waitUntil(t, 3*time.Second, svc.Connected, "connected flag")

	users.Set(&types.User{ID: 1, Name: "X"})

	time.Sleep(150 * time.Millisecond)
	if n := notifier.Count(types.EventJoinSubmissionRoom, 1); n != 1 {
		t.Errorf("Expected the existing connection to be kept, got %d joins", n)
	}
	if hasLeave(1)(notifier.Frames()) {
		t.Error("Expected no leave for a profile update")
	}
	if !svc.Connected() {
		t.Error("Expected to stay connected")
	}
}

func TestService_UserSwitchReconnects(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := startService(t, users, notifier)
	waitUntil(t, 3*time.Second, svc.Connected, "connected flag")

	users.Set(&types.User{ID: 2, Name: "Alice"})

	if !notifier.WaitFor(3*time.Second, hasLeave(1)) {
		t.Error("Expected the old user to leave")
	}
	waitUntil(t, 3*time.Second, func() bool { return notifier.RoomSize(2) == 1 }, "join for the new user")
	waitUntil(t, 3*time.Second, svc.Connected, "reconnected flag")
	if n := notifier.RoomSize(1); n != 0 {
		t.Errorf("Expected the old room to be empty, got %d", n)
	}
	if id := svc.CurrentUserID(); id != 2 {
		t.Errorf("Expected current user 2, got %d", id)
	}
}

func TestService_ReplacedChannelFramesDropped(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := startService(t, users, notifier)
	waitUntil(t, 3*time.Second, svc.Connected, "connected flag")

	got := make(chan json.RawMessage, 4)
	svc.Subscribe(types.EventSubmissionResult, func(data json.RawMessage) { got <- data })

	svc.mu.Lock()
	old := svc.current
	svc.mu.Unlock()

	users.Set(&types.User{ID: 2, Name: "Alice"})
	svc.mu.Lock()
	replacement := svc.current
	svc.mu.Unlock()
	if replacement == nil || replacement == old {
		t.Fatal("Expected a new channel for the switched user")
	}

	// a frame the old read loop decoded after the switch
	late := types.Envelope{Event: types.EventSubmissionResult, Data: json.RawMessage(`{"status":"ACCEPTED","user_id":1}`)}
	if err := svc.deliver(context.Background(), old, late); err != nil {
		t.Fatalf("Expected a silent drop, got %v", err)
	}
	select {
	case data := <-got:
		t.Errorf("Frame from the replaced channel reached a handler: %s", data)
	case <-time.After(100 * time.Millisecond):
	}

	fresh := types.Envelope{Event: types.EventSubmissionResult, Data: json.RawMessage(`{"status":"ACCEPTED","user_id":2}`)}
	if err := svc.deliver(context.Background(), replacement, fresh); err != nil {
		t.Fatalf("Deliver on the current channel failed: %v", err)
	}
	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected the current channel's frame delivered")
	}
}

func TestService_LogoutDisconnects(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := startService(t, users, notifier)
	waitUntil(t, 3*time.Second, svc.Connected, "connected flag")

	status := &statusLog{}
	cancel := svc.OnStatusChange(status.record)
	defer cancel()

	users.Set(nil)

	if svc.Connected() {
		t.Error("Expected disconnected immediately after logout")
	}
	if !notifier.WaitFor(3*time.Second, hasLeave(1)) {
		t.Error("Expected a leave frame after logout")
	}
	if states := status.snapshot(); len(states) != 1 || states[0] {
		t.Errorf("Expected a single disconnected transition, got %v", states)
	}
}

func TestService_UnsubscribedHandlerNeverFires(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := startService(t, users, notifier)
	waitUntil(t, 3*time.Second, func() bool { return notifier.RoomSize(1) == 1 }, "room membership")

	removed := make(chan json.RawMessage, 1)
	kept := make(chan json.RawMessage, 1)
	sub := svc.Subscribe(types.EventSubmissionResult, func(data json.RawMessage) { removed <- data })
	svc.Subscribe(types.EventSubmissionResult, func(data json.RawMessage) { kept <- data })

	svc.Unsubscribe(sub)
	svc.Unsubscribe(sub)

	if err := notifier.Push(1, types.EventSubmissionResult, types.SubmissionResult{Status: types.StatusAccepted}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case <-kept:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the remaining handler")
	}
	select {
	case <-removed:
		t.Error("Unsubscribed handler fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_HandlersSurviveReconnect(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := startService(t, users, notifier)

	got := make(chan json.RawMessage, 1)
	svc.Subscribe(types.EventSubmissionResult, func(data json.RawMessage) { got <- data })

	waitUntil(t, 3*time.Second, func() bool { return notifier.Count(types.EventJoinSubmissionRoom, 1) == 1 }, "first join")
	notifier.DropAll()
	waitUntil(t, 3*time.Second, func() bool { return notifier.Count(types.EventJoinSubmissionRoom, 1) == 2 }, "rejoin")

	if err := notifier.Push(1, types.EventSubmissionResult, types.SubmissionResult{Status: types.StatusAccepted}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected the handler to receive events after reconnect")
	}
}

func TestService_Close(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	users := newFakeUsers(&types.User{ID: 1, Name: "Bob"})
	svc := NewService(users, testOptions(notifier.URL()))
	if err := svc.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	waitUntil(t, 3*time.Second, svc.Connected, "connected flag")

	status := &statusLog{}
	stopStatus := svc.OnStatusChange(status.record)
	defer stopStatus()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if states := status.snapshot(); len(states) != 1 || states[0] {
		t.Errorf("Expected Close to publish a single disconnected transition, got %v", states)
	}
	if err := svc.Close(ctx); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if svc.Connected() {
		t.Error("Expected disconnected after Close")
	}
	if !notifier.WaitFor(2*time.Second, hasLeave(1)) {
		t.Error("Expected a leave frame on Close")
	}

	users.Set(&types.User{ID: 2})
	time.Sleep(100 * time.Millisecond)
	if n := notifier.Count(types.EventJoinSubmissionRoom, 2); n != 0 {
		t.Errorf("Expected a closed service to ignore users, got %d joins", n)
	}
	if err := svc.Start(); err != ErrServiceClosed {
		t.Errorf("Expected ErrServiceClosed, got %v", err)
	}
}
