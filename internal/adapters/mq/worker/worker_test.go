package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/ecoquest/internal/adapters/mq/queue"
	worker "github.com/okian/ecoquest/internal/adapters/mq/worker"
	"github.com/okian/ecoquest/internal/adapters/profile"
	"github.com/okian/ecoquest/internal/domain/ledger"
	logging "github.com/okian/ecoquest/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// mockUpdater records every update and can fail per user.
type mockUpdater struct {
	mu      sync.Mutex
	calls   []string
	fields  map[string]map[string]string
	errors  map[string]error
	release chan struct{}
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{
		fields: make(map[string]map[string]string),
		errors: make(map[string]error),
	}
}

func (m *mockUpdater) Update(ctx context.Context, userID string, fields map[string]string) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.errors[userID]; ok {
		return err
	}
	m.calls = append(m.calls, fields["seq"])
	u, ok := m.fields[userID]
	if !ok {
		u = make(map[string]string)
		m.fields[userID] = u
	}
	for k, v := range fields {
		u[k] = v
	}
	return nil
}

func (m *mockUpdater) setError(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[userID] = err
}

func (m *mockUpdater) sequence() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// waitFor collects n callback results or gives up after a second.
func waitFor(results <-chan error, n int) []error {
	var out []error
	timeout := time.After(time.Second)
	for len(out) < n {
		select {
		case err := <-results:
			out = append(out, err)
		case <-timeout:
			return out
		}
	}
	return out
}

func TestSyncWorker(t *testing.T) {
	convey.Convey("Given a sync worker over an in-memory queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		updater := newMockUpdater()
		w := worker.NewSyncWorker(q, updater, worker.WithName("test-worker"), worker.WithTimeout(time.Second))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		results := make(chan error, 8)
		done := func(err error) { results <- err }

		convey.Convey("When an update is pushed", func() {
			err := q.Push(ctx, ledger.Update{
				UserID: "player-1",
				Kind:   ledger.SyncAward,
				Fields: map[string]string{"TotalPoints": "3"},
				Done:   done,
			})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the store receives it and the callback sees success", func() {
				got := waitFor(results, 1)
				convey.So(got, convey.ShouldHaveLength, 1)
				convey.So(got[0], convey.ShouldBeNil)
				updater.mu.Lock()
				convey.So(updater.fields["player-1"]["TotalPoints"], convey.ShouldEqual, "3")
				updater.mu.Unlock()
			})
		})

		convey.Convey("When the store rejects the update", func() {
			cause := errors.New("backend down")
			updater.setError("player-2", cause)
			_ = q.Push(ctx, ledger.Update{UserID: "player-2", Kind: ledger.SyncProfile, Done: done})

			convey.Convey("Then the callback receives the wrapped cause", func() {
				got := waitFor(results, 1)
				convey.So(got, convey.ShouldHaveLength, 1)
				convey.So(errors.Is(got[0], cause), convey.ShouldBeTrue)
			})

			convey.Convey("And the worker keeps consuming", func() {
				_ = waitFor(results, 1)
				_ = q.Push(ctx, ledger.Update{UserID: "player-1", Kind: ledger.SyncProfile, Done: done})
				got := waitFor(results, 1)
				convey.So(got, convey.ShouldHaveLength, 1)
				convey.So(got[0], convey.ShouldBeNil)
			})
		})

		convey.Convey("When an update has no callback", func() {
			_ = q.Push(ctx, ledger.Update{UserID: "player-3", Kind: ledger.SyncImpact, Fields: map[string]string{"seq": "x"}})

			convey.Convey("Then it is still written", func() {
				deadline := time.Now().Add(time.Second)
				for len(updater.sequence()) == 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				convey.So(updater.sequence(), convey.ShouldResemble, []string{"x"})
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should stop and be safe to repeat", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestSyncWorkerTimeout(t *testing.T) {
	convey.Convey("Given a store that never answers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		updater := newMockUpdater()
		updater.release = make(chan struct{})
		w := worker.NewSyncWorker(q, updater, worker.WithTimeout(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		results := make(chan error, 1)
		_ = q.Push(ctx, ledger.Update{UserID: "player-1", Kind: ledger.SyncAward, Done: func(err error) { results <- err }})

		convey.Convey("Then the call is abandoned with a deadline error", func() {
			got := waitFor(results, 1)
			convey.So(got, convey.ShouldHaveLength, 1)
			convey.So(errors.Is(got[0], context.DeadlineExceeded), convey.ShouldBeTrue)
		})
	})
}

func TestSyncPool(t *testing.T) {
	convey.Convey("Given a pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		updater := newMockUpdater()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, updater)

			convey.Convey("Then it falls back to a single worker", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a single worker drains updates on shutdown", func() {
			pool := worker.NewPool(1, q, updater)
			seqs := []string{"1", "2", "3", "4", "5"}
			for _, s := range seqs {
				_ = q.Push(context.Background(), ledger.Update{UserID: "player-1", Kind: ledger.SyncAward, Fields: map[string]string{"seq": s}})
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then every queued update is applied in order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(updater.sequence(), convey.ShouldResemble, seqs)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When several workers share the queue", func() {
			pool := worker.NewPool(3, q, updater)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			results := make(chan error, 30)
			for i := 0; i < 30; i++ {
				_ = q.Push(ctx, ledger.Update{UserID: "player-1", Kind: ledger.SyncPhoto, Done: func(err error) { results <- err }})
			}

			convey.Convey("Then all updates complete", func() {
				got := waitFor(results, 30)
				convey.So(got, convey.ShouldHaveLength, 30)
				for _, err := range got {
					convey.So(err, convey.ShouldBeNil)
				}
				pool.Stop()
			})
		})
	})
}

func TestSyncPoolWithMemoryStore(t *testing.T) {
	convey.Convey("Given a pool writing to the in-memory profile store", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue()
		store := profile.NewMemoryStore()
		pool := worker.NewPool(1, q, store)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		_ = q.Push(ctx, ledger.Update{UserID: "player-9", Kind: ledger.SyncInit, Fields: map[string]string{ledger.KeyTotalPoints: "0"}})
		_ = pool.Shutdown(context.Background())

		convey.Convey("Then the profile holds the pushed fields", func() {
			fields, err := store.Fetch(context.Background(), "player-9")
			convey.So(err, convey.ShouldBeNil)
			convey.So(fields[ledger.KeyTotalPoints], convey.ShouldEqual, "0")
		})
	})
}
