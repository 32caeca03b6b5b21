package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/skyrank/internal/adapters/mq/queue"
	"github.com/okian/skyrank/internal/adapters/mq/worker"
	"github.com/okian/skyrank/internal/domain/model"
	logging "github.com/okian/skyrank/pkg/logger"
)

type mockQueue struct {
	events chan worker.Event
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{events: make(chan worker.Event, 128)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan worker.Event { return mq.events }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.events) })
	return nil
}

func (mq *mockQueue) add(id string) {
	mq.events <- model.EntityChange{ChangeID: id}
}

type mockSyncer struct {
	mu     sync.Mutex
	synced map[string]int
	errs   map[string]error
}

func newMockSyncer() *mockSyncer {
	return &mockSyncer{synced: make(map[string]int), errs: make(map[string]error)}
}

func (ms *mockSyncer) Sync(_ context.Context, change worker.Event) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err, ok := ms.errs[change.ChangeID]; ok {
		return err
	}
	ms.synced[change.ChangeID]++
	return nil
}

func (ms *mockSyncer) setError(id string, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.errs[id] = err
}

func (ms *mockSyncer) count(id string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.synced[id]
}

func (ms *mockSyncer) total() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, c := range ms.synced {
		n += c
	}
	return n
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.InitWithWriter(io.Discard, "text")

		q := newMockQueue()
		syncer := newMockSyncer()
		w := worker.NewInMemoryWorker(q, syncer, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a change is queued", func() {
			q.add("c1")

			convey.Convey("Then it is synced once", func() {
				convey.So(eventually(func() bool { return syncer.count("c1") == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When syncing a change fails", func() {
			syncer.setError("bad", errors.New("boom"))
			q.add("bad")
			q.add("good")

			convey.Convey("Then the worker keeps going", func() {
				convey.So(eventually(func() bool { return syncer.count("good") == 1 }), convey.ShouldBeTrue)
				convey.So(syncer.count("bad"), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then it stops, and a second shutdown is safe", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue is closed", func() {
			_ = q.Close()

			convey.Convey("Then Run returns", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})

	convey.Convey("Given a worker whose context is cancelled", t, func() {
		w := worker.NewInMemoryWorker(newMockQueue(), newMockSyncer())
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		cancel()

		convey.Convey("Then Run returns", func() {
			select {
			case <-w.Done():
			case <-time.After(time.Second):
				convey.So("worker still running", convey.ShouldBeEmpty)
			}
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.InitWithWriter(io.Discard, "text")

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		syncer := newMockSyncer()
		pool := worker.NewPool(4, q, syncer)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many producers enqueue concurrently and the pool shuts down", func() {
			const producers, perProducer = 5, 40
			var wg sync.WaitGroup
			for i := 0; i < producers; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for j := 0; j < perProducer; j++ {
						q.Enqueue(ctx, model.EntityChange{ChangeID: fmt.Sprintf("c-%d-%d", id, j)})
					}
				}(i)
			}
			wg.Wait()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then every queued change is synced before shutdown returns", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(syncer.total(), convey.ShouldEqual, producers*perProducer)
			})
		})
	})

	convey.Convey("Given a pool with the default size", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newMockSyncer())

		convey.Convey("Then it has at least one worker", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
