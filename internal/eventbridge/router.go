package eventbridge

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

const (
	defaultSubscriberCapacity = DefaultQueueSize
	defaultBacklogLimit       = 32
	defaultDedupeWindow       = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router hands events from producer goroutines (HTTP handlers, the
// watcher) to subscribers by event type, with de-duplication by event id,
// a backlog for types nobody listens to yet and bounded subscriber queues.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	sequence     int64
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       Logger
}

// Subscription is an active subscription to one or more event types.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]Event{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithBacklogLimit overrides the backlog size for pre-subscription buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Subscribe registers for events of the given types. Backlogged events of
// those types are delivered first.
func (r *Router) Subscribe(types ...string) Subscription {
	sub := newSubscriber(r.channelSize, r.logger)
	var backlog []Event
	keys := make([]string, 0, len(types))
	r.mu.Lock()
	for _, t := range types {
		key := normalizeType(t)
		if key == "" {
			continue
		}
		keys = append(keys, key)
		if r.subscribers[key] == nil {
			r.subscribers[key] = map[*subscriber]struct{}{}
		}
		r.subscribers[key][sub] = struct{}{}
		if existing := r.backlog[key]; len(existing) > 0 {
			backlog = append(backlog, existing...)
			delete(r.backlog, key)
		}
	}
	r.mu.Unlock()
	sortBySequence(backlog)
	for _, event := range backlog {
		sub.deliver(event)
	}
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			r.removeSubscriber(keys, sub)
		},
	}
}

// HandleEvent satisfies the EventProcessor interface.
func (r *Router) HandleEvent(event Event) error {
	r.Route(event)
	return nil
}

// Route delivers the event to subscribers of its type or buffers it when
// none exist. Events seen before (by id) are dropped.
func (r *Router) Route(event Event) {
	if event.EventID != "" && r.isDuplicate(event.EventID) {
		return
	}
	key := normalizeType(event.Type)
	if key == "" {
		return
	}
	r.mu.Lock()
	r.sequence++
	if event.Sequence == 0 {
		event.Sequence = r.sequence
	}
	subs := r.snapshotSubscribers(key)
	r.mu.Unlock()
	if len(subs) == 0 {
		r.bufferEvent(key, event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

func (r *Router) snapshotSubscribers(key string) []*subscriber {
	live := r.subscribers[key]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(keys []string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if subs := r.subscribers[key]; subs != nil {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(r.subscribers, key)
			}
		}
	}
	sub.close()
}

func (r *Router) bufferEvent(key string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.backlog[key]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		if r.logger != nil {
			r.logger.Printf("eventbridge: backlog drop for %s (limit %d)", key, r.backlogLimit)
		}
	}
	queue = append(queue, event)
	r.backlog[key] = queue
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

func normalizeType(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func sortBySequence(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	logger Logger
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan Event, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan Event {
	return s.ch
}

// deliver never blocks. On overflow the queued updates are folded into
// one that carries all their asset ids; if the queue is still full the
// oldest update goes first, then the oldest critical event.
func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	queued := make([]Event, 0, cap(s.ch)+1)
drain:
	for {
		select {
		case e := <-s.ch:
			queued = append(queued, e)
		default:
			break drain
		}
	}
	queued = coalesceUpdates(append(queued, event))
	for len(queued) > cap(s.ch) {
		i := slices.IndexFunc(queued, func(e Event) bool { return !isCriticalEvent(e.Type) })
		if i < 0 {
			i = 0
		}
		s.logDrop(queued[i], "queue overflow")
		queued = slices.Delete(queued, i, i+1)
	}
	for _, e := range queued {
		s.ch <- e
	}
}

// coalesceUpdates merges every asset.updated event into the last one,
// which keeps its position, id and sequence.
func coalesceUpdates(events []Event) []Event {
	last := -1
	var ids []string
	for i, e := range events {
		if normalizeType(e.Type) == TypeAssetUpdated {
			last = i
			ids = append(ids, e.AssetIDs...)
		}
	}
	if last < 0 {
		return events
	}
	slices.Sort(ids)
	merged := events[last]
	merged.AssetIDs = slices.Compact(ids)
	out := make([]Event, 0, len(events))
	for i, e := range events {
		switch {
		case i == last:
			out = append(out, merged)
		case normalizeType(e.Type) != TypeAssetUpdated:
			out = append(out, e)
		}
	}
	return out
}

func (s *subscriber) logDrop(event Event, reason string) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("eventbridge: dropped %s %v (%s)", event.Type, event.AssetIDs, reason)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Deletions and shutdown outrank updates when a queue overflows.
func isCriticalEvent(kind string) bool {
	kind = normalizeType(kind)
	return kind == TypeAssetDeleted || kind == TypeShutdown
}
