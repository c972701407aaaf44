package server

import (
	"context"
	"sync"

	"github.com/propforge/docsync/internal/docsync"
)

const (
	EventSyncStatus = "sync-status"
	eventHeartbeat  = "heartbeat"
)

// StatusDispatcher fans sync status transitions out to per-company
// subscribers. It implements docsync.EventPublisher; publishing never
// blocks, slow subscribers drop events.
type StatusDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*statusSubscriber
	nextID      int64
	bufferSize  int
}

type statusSubscriber struct {
	id     int64
	stream chan docsync.StatusEvent
}

func NewStatusDispatcher() *StatusDispatcher {
	return &StatusDispatcher{
		subscribers: make(map[string]map[int64]*statusSubscriber),
		bufferSize:  16,
	}
}

func (d *StatusDispatcher) Subscribe(ctx context.Context, companyID string) (<-chan docsync.StatusEvent, func()) {
	if companyID == "" {
		ch := make(chan docsync.StatusEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &statusSubscriber{
		id:     d.nextSequence(),
		stream: make(chan docsync.StatusEvent, d.bufferSize),
	}
	d.registerSubscriber(companyID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(companyID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *StatusDispatcher) PublishStatus(event docsync.StatusEvent) {
	if event.CompanyID == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.CompanyID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*statusSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *StatusDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *StatusDispatcher) registerSubscriber(companyID string, subscriber *statusSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[companyID]; !ok {
		d.subscribers[companyID] = make(map[int64]*statusSubscriber)
	}
	d.subscribers[companyID][subscriber.id] = subscriber
}

func (d *StatusDispatcher) unregisterSubscriber(companyID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[companyID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, companyID)
		}
	}
	d.mu.Unlock()
}
