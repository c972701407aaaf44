package docsync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueueAction enumerates the operations the sync queue can carry.
type QueueAction string

const (
	ActionPush    QueueAction = "push"
	ActionPull    QueueAction = "pull"
	ActionResolve QueueAction = "resolve"
)

const (
	defaultDebounce    = 5 * time.Second
	defaultMaxAttempts = 3
)

// QueueItem is one pending sync operation. Lower priority numbers run first.
type QueueItem struct {
	ID         string
	DocumentID string
	Provider   Provider
	Action     QueueAction
	Priority   int
	EnqueuedAt time.Time
	Attempts   int
}

// QueueStats reports one processing pass.
type QueueStats struct {
	Processed int
	Failed    int
	Remaining int
}

// QueueProcessor executes a single queue item.
type QueueProcessor interface {
	ProcessQueueItem(ctx context.Context, item QueueItem) error
}

// QueueConfig bundles queue construction options.
type QueueConfig struct {
	Processor   QueueProcessor
	Debounce    time.Duration
	MaxAttempts int
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Queue batches and debounces sync operations in memory. Items are
// deduplicated per (document, action), processed in priority order, and
// retried with priority decay up to MaxAttempts. Single-process only; a
// multi-instance deployment needs an external queue instead.
type Queue struct {
	mu          sync.Mutex
	items       []QueueItem
	processing  bool
	timer       *time.Timer
	processor   QueueProcessor
	debounce    time.Duration
	maxAttempts int
	clock       func() time.Time
	logger      *zap.Logger
}

// NewQueue constructs a sync queue with sane defaults.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Processor == nil {
		return nil, errors.New("queue processor is required")
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Queue{
		processor:   cfg.Processor,
		debounce:    debounce,
		maxAttempts: maxAttempts,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Enqueue adds an item, replacing any existing entry for the same document
// and action, and schedules a debounced flush.
func (q *Queue) Enqueue(item QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, existing := range q.items {
		if existing.DocumentID == item.DocumentID && existing.Action == item.Action {
			continue
		}
		kept = append(kept, existing)
	}
	item.EnqueuedAt = q.clock().UTC()
	item.Attempts = 0
	q.items = append(kept, item)
	q.sortLocked()
	q.scheduleFlushLocked()
}

// Process drains the current batch in priority order. Failed items are
// re-enqueued with decayed priority until they exhaust their attempts.
func (q *Queue) Process(ctx context.Context) QueueStats {
	q.mu.Lock()
	if q.processing {
		remaining := len(q.items)
		q.mu.Unlock()
		return QueueStats{Remaining: remaining}
	}
	q.processing = true
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	var stats QueueStats
	for _, item := range batch {
		if err := q.processor.ProcessQueueItem(ctx, item); err != nil {
			stats.Failed++
			if item.Attempts+1 < q.maxAttempts {
				item.Attempts++
				item.Priority++
				q.mu.Lock()
				q.items = append(q.items, item)
				q.mu.Unlock()
			} else {
				q.logger.Warn("sync queue item dropped",
					zap.String("document_id", item.DocumentID),
					zap.String("action", string(item.Action)),
					zap.Int("attempts", item.Attempts+1),
					zap.Error(err))
			}
			continue
		}
		stats.Processed++
	}

	q.mu.Lock()
	q.sortLocked()
	q.processing = false
	stats.Remaining = len(q.items)
	q.mu.Unlock()
	return stats
}

// Flush cancels the debounce timer and processes the queue immediately.
func (q *Queue) Flush(ctx context.Context) QueueStats {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()
	return q.Process(ctx)
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PendingFor returns the pending items for a document.
func (q *Queue) PendingFor(documentID string) []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var pending []QueueItem
	for _, item := range q.items {
		if item.DocumentID == documentID {
			pending = append(pending, item)
		}
	}
	return pending
}

// Remove drops all pending items for a document and reports how many were
// removed. Used when a document is deleted or its sync is disconnected.
func (q *Queue) Remove(documentID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if item.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return removed
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].Priority < q.items[j].Priority
	})
}

func (q *Queue) scheduleFlushLocked() {
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.debounce, func() {
		q.mu.Lock()
		q.timer = nil
		q.mu.Unlock()
		q.Process(context.Background())
	})
}

// ProcessQueueItem lets the sync service act as the queue's processor.
// Push re-reads the authoritative local content before uploading; pull and
// resolve refresh the cloud copy so stale state is noticed promptly.
func (s *Service) ProcessQueueItem(ctx context.Context, item QueueItem) error {
	documentID, err := NewDocumentID(item.DocumentID)
	if err != nil {
		return err
	}

	switch item.Action {
	case ActionPush:
		content, err := s.loadDocumentContent(ctx, item.DocumentID)
		if err != nil {
			return err
		}
		_, err = s.SyncToCloud(ctx, documentID, content, item.Provider, "sync-queue")
		return err
	case ActionPull:
		return s.ProcessWebhook(ctx, item.Provider, s.syntheticPullPayload(ctx, documentID, item.Provider))
	case ActionResolve:
		_, err := s.FetchCloudContent(ctx, documentID, item.Provider)
		return err
	default:
		return errors.New("unknown queue action")
	}
}

// syntheticPullPayload builds a provider-shaped payload for a locally
// initiated pull so the webhook path can service it unchanged.
func (s *Service) syntheticPullPayload(ctx context.Context, documentID DocumentID, prov Provider) map[string]any {
	var state SyncState
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND provider = ?", documentID.String(), prov.String()).
		Take(&state).Error
	if err != nil {
		return map[string]any{}
	}
	switch prov {
	case ProviderGoogleDrive:
		return map[string]any{"fileId": state.CloudFileID}
	default:
		return map[string]any{
			"value": []any{
				map[string]any{"resourceData": map[string]any{"id": state.CloudFileID}},
			},
		}
	}
}
