package docsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingProcessor struct {
	mu        sync.Mutex
	processed []QueueItem
	failFirst map[string]int
}

func (p *recordingProcessor) ProcessQueueItem(_ context.Context, item QueueItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := item.DocumentID + "/" + string(item.Action)
	if remaining, ok := p.failFirst[key]; ok && remaining > 0 {
		p.failFirst[key] = remaining - 1
		return errors.New("transient failure")
	}
	p.processed = append(p.processed, item)
	return nil
}

func newTestQueue(t *testing.T, processor QueueProcessor, maxAttempts int) *Queue {
	t.Helper()
	queue, err := NewQueue(QueueConfig{
		Processor:   processor,
		Debounce:    time.Hour, // tests flush explicitly
		MaxAttempts: maxAttempts,
		Clock:       func() time.Time { return time.Unix(1700000600, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct queue: %v", err)
	}
	return queue
}

func TestQueueDeduplicatesPerDocumentAndAction(t *testing.T) {
	processor := &recordingProcessor{}
	queue := newTestQueue(t, processor, 3)

	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionPush, Priority: 5})
	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionPush, Priority: 1})
	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionResolve, Priority: 2})

	if queue.Len() != 2 {
		t.Fatalf("expected deduplicated queue of 2, got %d", queue.Len())
	}

	pending := queue.PendingFor("doc-1")
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending items, got %d", len(pending))
	}
	for _, item := range pending {
		if item.Action == ActionPush && item.Priority != 1 {
			t.Fatalf("re-enqueue must replace the earlier entry: %+v", item)
		}
	}
}

func TestQueueProcessesInPriorityOrder(t *testing.T) {
	processor := &recordingProcessor{}
	queue := newTestQueue(t, processor, 3)

	queue.Enqueue(QueueItem{DocumentID: "doc-low", Action: ActionPush, Priority: 9})
	queue.Enqueue(QueueItem{DocumentID: "doc-high", Action: ActionPush, Priority: 1})
	queue.Enqueue(QueueItem{DocumentID: "doc-mid", Action: ActionPush, Priority: 4})

	stats := queue.Flush(context.Background())
	if stats.Processed != 3 || stats.Failed != 0 || stats.Remaining != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	order := []string{
		processor.processed[0].DocumentID,
		processor.processed[1].DocumentID,
		processor.processed[2].DocumentID,
	}
	want := []string{"doc-high", "doc-mid", "doc-low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestQueueRetriesWithPriorityDecay(t *testing.T) {
	processor := &recordingProcessor{failFirst: map[string]int{"doc-1/push": 1}}
	queue := newTestQueue(t, processor, 3)

	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionPush, Priority: 1})

	stats := queue.Flush(context.Background())
	if stats.Failed != 1 || stats.Remaining != 1 {
		t.Fatalf("expected failed item to be re-enqueued: %+v", stats)
	}

	pending := queue.PendingFor("doc-1")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending item, got %d", len(pending))
	}
	if pending[0].Attempts != 1 || pending[0].Priority != 2 {
		t.Fatalf("retry must record the attempt and decay priority: %+v", pending[0])
	}

	stats = queue.Flush(context.Background())
	if stats.Processed != 1 || stats.Remaining != 0 {
		t.Fatalf("expected retry to succeed: %+v", stats)
	}
}

func TestQueueDropsItemAfterMaxAttempts(t *testing.T) {
	processor := &recordingProcessor{failFirst: map[string]int{"doc-1/push": 10}}
	queue := newTestQueue(t, processor, 2)

	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionPush})

	queue.Flush(context.Background())
	stats := queue.Flush(context.Background())
	if stats.Remaining != 0 {
		t.Fatalf("exhausted item must be dropped: %+v", stats)
	}
	if len(processor.processed) != 0 {
		t.Fatalf("item must never have been processed successfully")
	}
}

func TestQueueRemoveDropsPendingWork(t *testing.T) {
	processor := &recordingProcessor{}
	queue := newTestQueue(t, processor, 3)

	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionPush})
	queue.Enqueue(QueueItem{DocumentID: "doc-1", Action: ActionPull})
	queue.Enqueue(QueueItem{DocumentID: "doc-2", Action: ActionPush})

	if removed := queue.Remove("doc-1"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected 1 remaining item, got %d", queue.Len())
	}
}

func TestQueueRejectsMissingProcessor(t *testing.T) {
	if _, err := NewQueue(QueueConfig{}); err == nil {
		t.Fatalf("expected constructor error")
	}
}

func TestServiceProcessesPushQueueItem(t *testing.T) {
	fixture := newTestFixture(t, []string{"state-1", "version-1"})
	fixture.initialize(t, "doc-1", "file-1")
	seedDocument(t, fixture, "doc-1", "queued content")
	fixture.client.content["file-1"] = "stale cloud copy"

	err := fixture.service.ProcessQueueItem(context.Background(), QueueItem{
		DocumentID: "doc-1",
		Provider:   ProviderOneDrive,
		Action:     ActionPush,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fixture.client.uploads["file-1"] != "queued content" {
		t.Fatalf("expected queued content to be uploaded, got %q", fixture.client.uploads["file-1"])
	}
}
