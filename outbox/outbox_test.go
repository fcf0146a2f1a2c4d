package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/billing/store"
	"github.com/aasavchauhan/Water-Supply-Management-System/outbox"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var t0 = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

// fakeRemote fails each entity a configured number of times before succeeding.
type fakeRemote struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]bool
	pushed    []string
	sent      []string // operation and entity of each delivered item
}

func (r *fakeRemote) Push(_ context.Context, item billing.SyncItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.permanent[item.EntityID] {
		return &outbox.PermanentError{Err: errors.New("rejected")}
	}
	if r.failures[item.EntityID] > 0 {
		r.failures[item.EntityID]--
		return errors.New("connection refused")
	}
	r.pushed = append(r.pushed, item.EntityID)
	r.sent = append(r.sent, string(item.Operation)+" "+item.EntityID)
	return nil
}

func enqueue(t *testing.T, q *store.Memory, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(context.Background(), billing.SyncItem{
			ID:            fmt.Sprintf("item-%d", i),
			EntityType:    "payment",
			EntityID:      fmt.Sprintf("p-%d", i),
			Operation:     billing.OpCreate,
			Payload:       []byte(`{}`),
			Status:        billing.SyncPending,
			NextAttemptAt: t0,
			CreatedAt:     t0.Add(time.Duration(i) * time.Second),
		}))
	}
}

func newDispatcher(q outbox.Queue, r outbox.Remote, now *time.Time) *outbox.Dispatcher {
	d := outbox.NewDispatcher(q, r)
	d.Now = func() time.Time { return *now }
	d.Logger = log.New(io.Discard, "", 0)
	return d
}

// =============================================================================
// DISPATCHER
// =============================================================================

func TestDispatcher_DeliversInOrder(t *testing.T) {
	q := store.NewMemory()
	enqueue(t, q, 3)
	remote := &fakeRemote{}
	now := t0
	d := newDispatcher(q, remote, &now)

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outbox.Report{Sent: 3}, report)
	assert.Equal(t, []string{"p-0", "p-1", "p-2"}, remote.pushed)

	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outbox.Report{}, report, "done items are not resent")
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	// GIVEN: A remote that fails p-0 twice
	q := store.NewMemory()
	enqueue(t, q, 1)
	remote := &fakeRemote{failures: map[string]int{"p-0": 2}}
	now := t0
	d := newDispatcher(q, remote, &now)
	d.Config.BaseBackoff = time.Minute

	// WHEN: Running immediately, then before and after the backoff expires
	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)

	now = t0.Add(30 * time.Second)
	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outbox.Report{}, report, "not due yet")

	now = t0.Add(time.Minute)
	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)

	now = now.Add(2 * time.Minute)
	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)

	// THEN: Delivered on the third attempt
	assert.Equal(t, 1, report.Sent)
	items := q.SyncItems()
	require.Len(t, items, 1)
	assert.Equal(t, billing.SyncDone, items[0].Status)
	assert.Equal(t, 2, items[0].Attempts)
}

func TestDispatcher_HoldsLaterChangesBehindBackedOffItem(t *testing.T) {
	// GIVEN: A create for p-0 that fails once and is backed off
	q := store.NewMemory()
	enqueue(t, q, 1)
	remote := &fakeRemote{failures: map[string]int{"p-0": 1}}
	now := t0
	d := newDispatcher(q, remote, &now)
	d.Config.BaseBackoff = time.Minute

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Retried)

	// AND: An update for the same payment queued during the backoff
	now = t0.Add(10 * time.Second)
	require.NoError(t, q.Enqueue(context.Background(), billing.SyncItem{
		ID:            "item-update",
		EntityType:    "payment",
		EntityID:      "p-0",
		Operation:     billing.OpUpdate,
		Payload:       []byte(`{}`),
		Status:        billing.SyncPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}))

	// WHEN: Running while the create is still backed off
	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)

	// THEN: The update waits for the create
	assert.Equal(t, outbox.Report{}, report)
	assert.Empty(t, remote.sent)

	// WHEN: Running after the backoff expires, twice
	now = t0.Add(time.Minute)
	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outbox.Report{Sent: 1}, report)

	report, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outbox.Report{Sent: 1}, report)

	// THEN: The remote saw the create before the update
	assert.Equal(t, []string{"create p-0", "update p-0"}, remote.sent)
}

func TestDispatcher_OtherRecordsNotHeldBack(t *testing.T) {
	// GIVEN: p-0 backed off, p-1 healthy
	q := store.NewMemory()
	enqueue(t, q, 2)
	remote := &fakeRemote{failures: map[string]int{"p-0": 1}}
	now := t0
	d := newDispatcher(q, remote, &now)
	d.Config.BaseBackoff = time.Minute

	// WHEN: Running once
	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)

	// THEN: Only the failing record waits
	assert.Equal(t, outbox.Report{Sent: 1, Retried: 1}, report)
	assert.Equal(t, []string{"create p-1"}, remote.sent)
}

func TestMemoryQueue_DuplicateID(t *testing.T) {
	q := store.NewMemory()
	enqueue(t, q, 1)

	err := q.Enqueue(context.Background(), billing.SyncItem{
		ID: "item-0", EntityType: "farmer", EntityID: "f-9", Operation: billing.OpDelete,
		NextAttemptAt: t0, CreatedAt: t0,
	})
	assert.ErrorIs(t, err, billing.ErrDuplicateRecord)

	items := q.SyncItems()
	require.Len(t, items, 1)
	assert.Equal(t, "p-0", items[0].EntityID, "the queued item is kept")

	err = q.WithTx(context.Background(), func(tx billing.Store) error {
		return tx.Enqueue(context.Background(), billing.SyncItem{ID: "item-0", EntityType: "payment", EntityID: "p-0"})
	})
	assert.ErrorIs(t, err, billing.ErrDuplicateRecord)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	q := store.NewMemory()
	enqueue(t, q, 1)
	remote := &fakeRemote{failures: map[string]int{"p-0": 100}}
	now := t0
	d := newDispatcher(q, remote, &now)
	d.Config.MaxAttempts = 3
	d.Config.BaseBackoff = time.Second

	var failed int
	for i := 0; i < 10; i++ {
		report, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		failed += report.Failed
		now = now.Add(time.Hour)
	}

	assert.Equal(t, 1, failed)
	items := q.SyncItems()
	assert.Equal(t, billing.SyncFailed, items[0].Status)
	assert.Equal(t, 3, items[0].Attempts)
	assert.Equal(t, "connection refused", items[0].LastError)
}

func TestDispatcher_PermanentErrorFailsImmediately(t *testing.T) {
	q := store.NewMemory()
	enqueue(t, q, 2)
	remote := &fakeRemote{permanent: map[string]bool{"p-0": true}}
	now := t0
	d := newDispatcher(q, remote, &now)

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outbox.Report{Sent: 1, Failed: 1}, report, "one bad item does not block the rest")

	counts, err := q.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[billing.SyncFailed])
	assert.Equal(t, 1, counts[billing.SyncDone])
}

func TestDispatcher_AfterBatch(t *testing.T) {
	q := store.NewMemory()
	remote := &fakeRemote{}
	now := t0
	d := newDispatcher(q, remote, &now)
	calls := 0
	d.AfterBatch = func(context.Context) error { calls++; return nil }

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, calls, "empty batches skip the hook")

	enqueue(t, q, 1)
	_, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDispatcher_BatchSize(t *testing.T) {
	q := store.NewMemory()
	enqueue(t, q, 5)
	now := t0
	d := newDispatcher(q, &fakeRemote{}, &now)
	d.Config.BatchSize = 2

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
}

func TestBackoff(t *testing.T) {
	cfg := outbox.Config{BaseBackoff: 30 * time.Second, MaxBackoff: 5 * time.Minute}
	assert.Equal(t, 30*time.Second, outbox.Backoff(cfg, 1))
	assert.Equal(t, time.Minute, outbox.Backoff(cfg, 2))
	assert.Equal(t, 2*time.Minute, outbox.Backoff(cfg, 3))
	assert.Equal(t, 4*time.Minute, outbox.Backoff(cfg, 4))
	assert.Equal(t, 5*time.Minute, outbox.Backoff(cfg, 5))
	assert.Equal(t, 5*time.Minute, outbox.Backoff(cfg, 50))
	assert.Equal(t, 30*time.Second, outbox.Backoff(outbox.Config{}, 0))
}

// =============================================================================
// HTTP REMOTE
// =============================================================================

func TestHTTPRemote(t *testing.T) {
	type seen struct{ method, path, key, auth string }
	var (
		mu     sync.Mutex
		got    []seen
		status = http.StatusCreated
	)
	last := func() seen {
		mu.Lock()
		defer mu.Unlock()
		return got[len(got)-1]
	}
	respondWith := func(s int) {
		mu.Lock()
		status = s
		mu.Unlock()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, seen{r.Method, r.URL.Path, r.Header.Get("Idempotency-Key"), r.Header.Get("Authorization")})
		w.WriteHeader(status)
	}))
	defer srv.Close()

	remote := outbox.NewHTTPRemote(srv.URL+"/api/", "secret")
	ctx := context.Background()
	item := billing.SyncItem{ID: "q-1", EntityType: "supply", EntityID: "s-1", Operation: billing.OpCreate, Payload: []byte(`{}`)}

	t.Run("create", func(t *testing.T) {
		require.NoError(t, remote.Push(ctx, item))
		assert.Equal(t, seen{"POST", "/api/supply-entries", "q-1", "Bearer secret"}, last())
	})

	t.Run("update and delete address the record", func(t *testing.T) {
		respondWith(http.StatusOK)
		upd := item
		upd.Operation = billing.OpUpdate
		require.NoError(t, remote.Push(ctx, upd))
		assert.Equal(t, "PUT", last().method)
		assert.Equal(t, "/api/supply-entries/s-1", last().path)

		del := item
		del.Operation = billing.OpDelete
		require.NoError(t, remote.Push(ctx, del))
		assert.Equal(t, "DELETE", last().method)
	})

	t.Run("settings update addresses the single record", func(t *testing.T) {
		respondWith(http.StatusOK)
		settings := billing.SyncItem{ID: "q-2", EntityType: "settings", EntityID: billing.SettingsID, Operation: billing.OpUpdate, Payload: []byte(`{}`)}
		require.NoError(t, remote.Push(ctx, settings))
		assert.Equal(t, seen{"PUT", "/api/settings/default", "q-2", "Bearer secret"}, last())
	})

	t.Run("duplicate create is success", func(t *testing.T) {
		respondWith(http.StatusConflict)
		assert.NoError(t, remote.Push(ctx, item))
	})

	t.Run("delete of missing record is success", func(t *testing.T) {
		respondWith(http.StatusNotFound)
		del := item
		del.Operation = billing.OpDelete
		assert.NoError(t, remote.Push(ctx, del))
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		respondWith(http.StatusBadRequest)
		err := remote.Push(ctx, item)
		var perm *outbox.PermanentError
		assert.ErrorAs(t, err, &perm)
	})

	t.Run("server errors and throttling are retried", func(t *testing.T) {
		for _, s := range []int{http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
			respondWith(s)
			err := remote.Push(ctx, item)
			require.Error(t, err)
			var perm *outbox.PermanentError
			assert.False(t, errors.As(err, &perm), "status %d", s)
		}
	})

	t.Run("unknown entity type", func(t *testing.T) {
		bad := item
		bad.EntityType = "invoice"
		var perm *outbox.PermanentError
		assert.ErrorAs(t, remote.Push(ctx, bad), &perm)
	})
}
