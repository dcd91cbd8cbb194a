package services

import (
	"context"
	"log"
	"sync"
	"time"

	"taskboard.com/taskboard/internal/events"
)

// PoolService fans task events out to the push publishers on a fixed set of
// workers, so request handlers never wait on a slow subscriber.
type PoolService struct {
	queue      chan events.Event
	wg         sync.WaitGroup
	publishers []events.Publisher
	timeout    time.Duration
	closeOnce  sync.Once
}

const publishTimeout = 5 * time.Second

func NewPoolService(workers int, queueSize int, publishers ...events.Publisher) *PoolService {
	p := &PoolService{
		queue:      make(chan events.Event, queueSize),
		publishers: publishers,
		timeout:    publishTimeout,
	}

	for i := 1; i <= workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// Enqueue schedules event for delivery. It reports false when the queue is
// full and the event was dropped.
func (p *PoolService) Enqueue(event events.Event) bool {
	select {
	case p.queue <- event:
		return true
	default:
		log.Printf("event queue full, dropping %s", event.Name)
		return false
	}
}

func (p *PoolService) worker(workerID int) {
	defer p.wg.Done()

	log.Printf("worker %d started", workerID)

	for event := range p.queue {
		p.handleEvent(workerID, event)
	}

	log.Printf("worker %d stopped", workerID)
}

func (p *PoolService) handleEvent(workerID int, event events.Event) {
	for _, publisher := range p.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := publisher.Publish(ctx, event); err != nil {
			log.Printf("worker %d: failed to publish %s: %v", workerID, event.Name, err)
		}
		cancel()
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (p *PoolService) Shutdown(ctx context.Context) {
	p.closeOnce.Do(func() { close(p.queue) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("event pool shut down cleanly")
	case <-ctx.Done():
		log.Println("event pool shutdown timed out")
	}
}
