package session

import (
	"context"
	"testing"
	"time"

	"github.com/sifan077/LinkShield/internal/app/shield/protection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunner_MarksAutoProceedDueWithoutRedirecting(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	s := f.sessionWith(t, false, protection.Load(`{"level":2,"timer":30}`), browserUA, "https://example.com/runner",
		Options{Grace: 20 * time.Millisecond, AutoConfirmDelay: 10 * time.Millisecond})
	s.Begin(time.Now())
	require.Equal(t, StateGated, s.Snapshot(time.Now()).State)

	r := Start(context.Background(), s, 5*time.Millisecond, nil)

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not finish")
	}
	r.Stop()

	// Nobody has collected the navigation yet.
	assert.Equal(t, StateReady, s.Snapshot(time.Now()).State)
	assert.Empty(t, f.recorder.all())

	snap := s.Poll(context.Background(), time.Now())
	require.NotNil(t, snap.Navigation)
	assert.Equal(t, StateRedirected, snap.State)
	assert.Len(t, f.recorder.all(), 1)
}

func TestRunner_StopCancelsWithoutSideEffects(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	s := f.session(t, false, protection.Load(`{"level":2,"timer":60000}`), browserUA, "https://example.com")
	s.Begin(time.Now())

	r := Start(context.Background(), s, time.Millisecond, nil)
	time.Sleep(20 * time.Millisecond)

	s.Abandon()
	r.Stop()
	r.Stop()

	assert.Equal(t, StateAbandoned, s.Snapshot(time.Now()).State)
	assert.Empty(t, f.recorder.all())
}

func TestRunner_ExitsWhenLevelOneIsReady(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	s := f.session(t, false, protection.Load(`{"level":1,"timer":10}`), browserUA, "https://example.com")
	s.Begin(time.Now())

	r := Start(context.Background(), s, 2*time.Millisecond, nil)
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner kept ticking a session waiting on the visitor")
	}

	assert.Equal(t, StateReady, s.Snapshot(time.Now()).State)
	assert.Empty(t, f.recorder.all())
}

func TestRegistry_SweepAndRemove(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	latch := NewMemoryLatch()
	f.deps.Latch = latch
	reg := NewRegistry(latch)

	live := f.session(t, false, protection.Load(`{"level":2,"timer":60000}`), browserUA, "https://example.com")
	live.id = "live"
	live.Begin(time.Now())
	reg.Add(live, Start(context.Background(), live, 5*time.Millisecond, nil))

	stale := f.session(t, false, protection.Load(`{"level":1,"timer":0}`), browserUA, "https://example.com")
	stale.id = "stale"
	stale.Begin(time.Now().Add(-time.Hour))
	reg.Add(stale, nil)

	require.Equal(t, 2, reg.Len())
	assert.Equal(t, 1, reg.Sweep(time.Now(), 10*time.Minute))
	assert.Equal(t, StateAbandoned, stale.Snapshot(time.Now()).State)

	_, ok := reg.Get("stale")
	assert.False(t, ok)

	assert.True(t, reg.Abandon("live"))
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, f.recorder.all())

	reg.Close()
}

func TestRegistry_SweepDropsDeliveredSessions(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistry(nil)

	s := f.session(t, false, protection.Load(`{"level":1,"timer":0}`), browserUA, "https://example.com")
	s.Begin(time.Now())
	reg.Add(s, nil)

	assert.Equal(t, 0, reg.Sweep(time.Now(), time.Hour))

	_, err := s.Proceed(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Sweep(time.Now(), time.Hour))
	assert.Equal(t, 0, reg.Len())
}

func TestNavigationHelpers(t *testing.T) {
	assert.Equal(t, "https://example.com/x", NormalizeURL("example.com/x"))
	assert.Equal(t, "http://example.com", NormalizeURL("http://example.com"))
	assert.Equal(t, "HTTPS://example.com", NormalizeURL("  HTTPS://example.com "))
	assert.Equal(t, "https://cdn.example.com/a", NormalizeURL("//cdn.example.com/a"))

	p, err := PickerFor("replace")
	require.NoError(t, err)
	assert.Equal(t, MethodReplace, p.Pick("x").Execute("u").Method)

	_, err = PickerFor("teleport")
	assert.Error(t, err)

	seen := map[Method]bool{}
	i := 0
	rp := RandomPicker{Intn: func(n int) int { i++; return i % n }}
	for j := 0; j < 8; j++ {
		seen[rp.Pick("s").Execute("u").Method] = true
	}
	assert.Len(t, seen, 4)
}
