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

func testOptions(url string) Options {
	return Options{
		URL:          url,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
		PingInterval: 500 * time.Millisecond,
		Backoff:      Backoff{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2},
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// envelopeSink collects delivered envelopes.
type envelopeSink struct {
	mu   sync.Mutex
	envs []types.Envelope
	ch   chan types.Envelope
}

func newEnvelopeSink() *envelopeSink {
	return &envelopeSink{ch: make(chan types.Envelope, 16)}
}

func (s *envelopeSink) sink(_ context.Context, env types.Envelope) error {
	s.mu.Lock()
	s.envs = append(s.envs, env)
	s.mu.Unlock()
	s.ch <- env
	return nil
}

type statusLog struct {
	mu     sync.Mutex
	states []bool
}

func (l *statusLog) record(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, connected)
}

func (l *statusLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.states...)
}

// firstFramePerConn checks that every socket opened with a join.
func firstFramePerConn(frames []platformtest.Frame) map[int]platformtest.Frame {
	first := make(map[int]platformtest.Frame)
	for _, f := range frames {
		if _, seen := first[f.Conn]; !seen {
			first[f.Conn] = f
		}
	}
	return first
}

func TestChannel_JoinsBeforeDelivery(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	if err := notifier.PushOnJoin(7, types.EventSubmissionResult, types.SubmissionResult{Status: types.StatusAccepted}); err != nil {
		t.Fatalf("Failed to queue verdict: %v", err)
	}

	sink := newEnvelopeSink()
	ch := NewChannel(7, testOptions(notifier.URL()), sink.sink, nil)
	if err := ch.Start(); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	select {
	case env := <-sink.ch:
		if env.Event != types.EventSubmissionResult {
			t.Errorf("Expected submission_result, got %s", env.Event)
		}
		var result types.SubmissionResult
		if err := json.Unmarshal(env.Data, &result); err != nil || result.Status != types.StatusAccepted {
			t.Errorf("Expected ACCEPTED payload, got %s (%v)", env.Data, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for verdict")
	}

	if n := notifier.Count(types.EventJoinSubmissionRoom, 7); n != 1 {
		t.Errorf("Expected exactly one join, got %d", n)
	}
	for conn, f := range firstFramePerConn(notifier.Frames()) {
		if f.Event != types.EventJoinSubmissionRoom {
			t.Errorf("Connection %d opened with %s instead of a join", conn, f.Event)
		}
	}
	waitUntil(t, time.Second, ch.Connected, "connected flag")
}

func TestChannel_RejoinsAfterConnectionLoss(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	status := &statusLog{}
	ch := NewChannel(3, testOptions(notifier.URL()), newEnvelopeSink().sink, status.record)
	if err := ch.Start(); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	waitUntil(t, 3*time.Second, func() bool { return notifier.Count(types.EventJoinSubmissionRoom, 3) == 1 }, "first join")
	waitUntil(t, time.Second, ch.Connected, "connected flag")

	notifier.DropAll()

	waitUntil(t, 3*time.Second, func() bool { return notifier.Count(types.EventJoinSubmissionRoom, 3) == 2 }, "rejoin")
	waitUntil(t, time.Second, ch.Connected, "reconnected flag")

	first := firstFramePerConn(notifier.Frames())
	if len(first) != 2 {
		t.Fatalf("Expected 2 connections, got %d", len(first))
	}
	for conn, f := range first {
		if f.Event != types.EventJoinSubmissionRoom || f.UserID != 3 {
			t.Errorf("Connection %d opened with %+v", conn, f)
		}
	}

	states := status.snapshot()
	expected := []bool{true, false, true}
	if len(states) != len(expected) {
		t.Fatalf("Expected transitions %v, got %v", expected, states)
	}
	for i := range expected {
		if states[i] != expected[i] {
			t.Errorf("Transition %d: expected %v, got %v", i, expected[i], states[i])
		}
	}
}

func TestChannel_CloseLeavesRoomAndStops(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	ch := NewChannel(5, testOptions(notifier.URL()), newEnvelopeSink().sink, nil)
	if err := ch.Start(); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	waitUntil(t, 3*time.Second, ch.Connected, "connected flag")

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if ch.Connected() {
		t.Error("Expected disconnected after Close")
	}

	if !notifier.WaitFor(2*time.Second, func(frames []platformtest.Frame) bool {
		for _, f := range frames {
			if f.Event == types.EventLeaveSubmissionRoom && f.UserID == 5 {
				return true
			}
		}
		return false
	}) {
		t.Error("Expected a leave frame on close")
	}

	time.Sleep(100 * time.Millisecond)
	if n := notifier.Count(types.EventJoinSubmissionRoom, 5); n != 1 {
		t.Errorf("Expected no reconnect after Close, got %d joins", n)
	}
	if err := ch.Start(); err != ErrChannelClosed {
		t.Errorf("Expected ErrChannelClosed, got %v", err)
	}
}

func TestChannel_MalformedFrameSkipped(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	sink := newEnvelopeSink()
	ch := NewChannel(9, testOptions(notifier.URL()), sink.sink, nil)
	if err := ch.Start(); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	waitUntil(t, 3*time.Second, func() bool { return notifier.RoomSize(9) == 1 }, "room membership")

	if err := notifier.PushRaw(9, []byte("not json")); err != nil {
		t.Fatalf("PushRaw failed: %v", err)
	}
	if err := notifier.Push(9, types.EventSubmissionResult, types.SubmissionResult{Status: types.StatusWrongAnswer}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case env := <-sink.ch:
		if env.Event != types.EventSubmissionResult {
			t.Errorf("Expected the valid frame, got %s", env.Event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the valid frame")
	}
	if n := notifier.Count(types.EventJoinSubmissionRoom, 9); n != 1 {
		t.Errorf("A malformed frame must not drop the connection, got %d joins", n)
	}
}

func TestChannel_RetriesUntilAvailable(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()
	notifier.Refuse(true)

	ch := NewChannel(4, testOptions(notifier.URL()), newEnvelopeSink().sink, nil)
	if err := ch.Start(); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	time.Sleep(100 * time.Millisecond)
	if ch.Connected() {
		t.Fatal("Expected disconnected while the notifier refuses")
	}

	notifier.Refuse(false)
	waitUntil(t, 3*time.Second, ch.Connected, "connection after refusal")
	if n := notifier.Count(types.EventJoinSubmissionRoom, 4); n != 1 {
		t.Errorf("Expected one join, got %d", n)
	}
}

func TestChannel_StartTwice(t *testing.T) {
	notifier := platformtest.NewNotifier()
	defer notifier.Close()

	ch := NewChannel(1, testOptions(notifier.URL()), newEnvelopeSink().sink, nil)
	if err := ch.Start(); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	defer func() { _ = ch.Close() }()
	if err := ch.Start(); err != ErrChannelStarted {
		t.Errorf("Expected ErrChannelStarted, got %v", err)
	}
}
