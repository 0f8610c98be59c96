package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/pace-bot/internal/llm"
	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap/zaptest"
)

type fakeGenerator struct {
	mu       sync.Mutex
	out      string
	err      error
	requests []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.out, f.err
}

func TestGetOrCreate_IdempotentAndTouches(t *testing.T) {
	store := NewStore(DefaultMaxTurns, 0, zaptest.NewLogger(t))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	a := store.GetOrCreate("s1")
	assert.Equal(t, InitialContext, a.DerivedContext())
	assert.Equal(t, clock, a.LastAccessed())

	clock = clock.Add(time.Minute)
	b := store.GetOrCreate("s1")
	assert.Same(t, a, b)
	assert.Equal(t, clock, b.LastAccessed())
	assert.Equal(t, 1, store.Len())
}

func TestAddMessage_FIFOEviction(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))

	for i := 0; i < 25; i++ {
		store.AddMessage("s", models.RoleUser, fmt.Sprintf("turn-%d", i))
		assert.LessOrEqual(t, store.GetOrCreate("s").Len(), 20)
	}

	turns := store.GetOrCreate("s").Turns()
	require.Len(t, turns, 20)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("turn-%d", i+5), turn.Content)
	}
}

func TestTurns_ReturnsCopy(t *testing.T) {
	store := NewStore(5, 0, zaptest.NewLogger(t))
	store.AddMessage("s", models.RoleUser, "original")

	turns := store.GetOrCreate("s").Turns()
	turns[0].Content = "mutated"

	assert.Equal(t, "original", store.GetOrCreate("s").Turns()[0].Content)
}

func TestRecentTurns(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		store.AddMessage("s", models.RoleUser, fmt.Sprint(i))
	}
	sess := store.GetOrCreate("s")
	assert.Len(t, sess.RecentTurns(6), 3)
	recent := sess.RecentTurns(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "1", recent[0].Content)
	assert.Equal(t, "2", recent[1].Content)
}

func TestStore_ConcurrentDistinctSessions(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			for j := 0; j < 30; j++ {
				store.AddMessage(id, models.RoleUser, "x")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
	for i := 0; i < 50; i++ {
		assert.Equal(t, 20, store.GetOrCreate(fmt.Sprintf("session-%d", i)).Len())
	}
}

func TestAcquire_SerializesSameSession(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))

	_, release := store.Acquire("s")

	acquired := make(chan struct{})
	go func() {
		_, r := store.Acquire("s")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire on the same session must wait")
	case <-time.After(50 * time.Millisecond):
	}

	// A different id is not blocked.
	_, releaseOther := store.Acquire("other")
	releaseOther()

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never proceeded")
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	store.AddMessage("s", models.RoleUser, "hello")

	assert.True(t, store.Delete("s"))
	assert.False(t, store.Delete("s"))
	_, ok := store.Get("s")
	assert.False(t, ok)

	sess := store.GetOrCreate("s")
	assert.Equal(t, 0, sess.Len())
	assert.Equal(t, InitialContext, sess.DerivedContext())
}

func TestDelete_WaitsForTurnInFlight(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	sess, release := store.Acquire("s")

	deleted := make(chan bool)
	go func() { deleted <- store.Delete("s") }()

	select {
	case <-deleted:
		t.Fatal("Delete returned while a turn held the session")
	case <-time.After(20 * time.Millisecond):
	}

	assert.True(t, store.Append(sess, models.RoleUser, "still mine"))
	release()

	select {
	case ok := <-deleted:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Delete never proceeded")
	}
	_, ok := store.Get("s")
	assert.False(t, ok)
}

func TestAppend_SkipsRemovedSession(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	sess := store.GetOrCreate("s")
	require.True(t, store.Delete("s"))

	assert.False(t, store.Append(sess, models.RoleUser, "late"))
	assert.Zero(t, sess.Len())

	_, ok := store.Get("s")
	assert.False(t, ok, "appending to a removed session must not recreate it")
}

func TestExpire_SkipsActiveAndFresh(t *testing.T) {
	store := NewStore(20, time.Hour, zaptest.NewLogger(t))
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	store.GetOrCreate("idle")
	_, release := store.Acquire("busy")
	defer release()

	clock = clock.Add(30 * time.Minute)
	store.GetOrCreate("fresh")

	clock = clock.Add(45 * time.Minute)
	removed := store.Expire()

	assert.Equal(t, 1, removed)
	_, ok := store.Get("idle")
	assert.False(t, ok)
	_, ok = store.Get("busy")
	assert.True(t, ok, "session with a turn in flight must survive expiry")
	_, ok = store.Get("fresh")
	assert.True(t, ok)
}

func TestExpire_DisabledWithoutTTL(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	store.GetOrCreate("s")
	store.now = func() time.Time { return time.Now().Add(100 * time.Hour) }
	assert.Equal(t, 0, store.Expire())
}

func TestDistill_NoTurnsIsNoop(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	gen := &fakeGenerator{out: "should not be used"}
	d := NewDistiller(gen, "m", DefaultWindow, DefaultDistillTemperature, DefaultDistillMaxTokens, zaptest.NewLogger(t))

	sess := store.GetOrCreate("empty")
	require.NoError(t, d.Distill(context.Background(), sess))

	assert.Equal(t, InitialContext, sess.DerivedContext())
	assert.Empty(t, gen.requests)
}

func TestDistill_UsesLastWindowAndPriorSummary(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	for i := 0; i < 8; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		store.AddMessage("s", role, fmt.Sprintf("msg-%d", i))
	}
	sess := store.GetOrCreate("s")
	sess.SetDerivedContext("Alex stays up late gaming.")

	gen := &fakeGenerator{out: "  Alex (son) games until 3 AM; parent is worried.  \n"}
	d := NewDistiller(gen, "summary-model", 6, 0.1, 150, zaptest.NewLogger(t))
	require.NoError(t, d.Distill(context.Background(), sess))

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, "summary-model", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	assert.Equal(t, 150, req.MaxTokens)
	require.Len(t, req.Messages, 1)

	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Alex stays up late gaming.")
	assert.NotContains(t, prompt, "msg-0")
	assert.NotContains(t, prompt, "msg-1")
	assert.Contains(t, prompt, "User: msg-2\nPACE: msg-3\n")
	assert.Less(t, strings.Index(prompt, "msg-2"), strings.Index(prompt, "msg-7"))

	assert.Equal(t, "Alex (son) games until 3 AM; parent is worried.", sess.DerivedContext())
}

func TestDistill_FailureKeepsPreviousContext(t *testing.T) {
	store := NewStore(20, 0, zaptest.NewLogger(t))
	store.AddMessage("s", models.RoleUser, "hello")
	sess := store.GetOrCreate("s")
	sess.SetDerivedContext("previous summary")

	gen := &fakeGenerator{err: fmt.Errorf("%w: timeout", llm.ErrUpstream)}
	d := NewDistiller(gen, "m", 6, 0.1, 150, zaptest.NewLogger(t))
	assert.ErrorIs(t, d.Distill(context.Background(), sess), llm.ErrUpstream)

	assert.Equal(t, "previous summary", sess.DerivedContext())

	gen.err, gen.out = nil, "   "
	assert.ErrorIs(t, d.Distill(context.Background(), sess), ErrEmptyContext)
	assert.Equal(t, "previous summary", sess.DerivedContext())
	assert.Len(t, gen.requests, 2)
}
