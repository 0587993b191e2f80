// Package event implements the bounded fan-out event channel: emit is
// non-blocking and silently drops when there are no subscribers; each
// subscriber owns an independent buffer (default capacity 256) that drops
// the OLDEST queued event on overflow, so a slow subscriber loses history,
// not the ability to keep receiving.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind names one of the eleven tagged-union event variants.
type Kind string

const (
	KindPipelineStarted   Kind = "pipeline_started"
	KindPipelineCompleted Kind = "pipeline_completed"
	KindPipelineFailed    Kind = "pipeline_failed"
	KindStageStarted      Kind = "stage_started"
	KindStageCompleted    Kind = "stage_completed"
	KindStageFailed       Kind = "stage_failed"
	KindStageRetrying     Kind = "stage_retrying"
	KindEdgeSelected      Kind = "edge_selected"
	KindGoalGateChecked   Kind = "goal_gate_checked"
	KindCheckpointSaved   Kind = "checkpoint_saved"
	KindContextUpdated    Kind = "context_updated"
)

// Event is the envelope common to every variant: a ULID identifier (for
// subscriber-side ordering/dedup), the variant Kind, a UTC timestamp, and a
// Kind-specific, JSON-serialisable Data payload.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func newEvent(kind Kind, data any) Event {
	return Event{ID: ulid.Make().String(), Kind: kind, Timestamp: time.Now().UTC(), Data: data}
}

// PipelineStartedData is KindPipelineStarted's payload.
type PipelineStartedData struct {
	RunID     string `json:"run_id"`
	GraphName string `json:"graph_name"`
	StartNode string `json:"start_node"`
}

// PipelineCompletedData is KindPipelineCompleted's payload.
type PipelineCompletedData struct {
	RunID          string   `json:"run_id"`
	CompletedNodes []string `json:"completed_nodes"`
	Steps          int      `json:"steps"`
	CostUSD        float64  `json:"cost_usd"`
}

// PipelineFailedData is KindPipelineFailed's payload.
type PipelineFailedData struct {
	RunID string `json:"run_id"`
	Node  string `json:"node,omitempty"`
	Error string `json:"error"`
}

// StageStartedData is KindStageStarted's payload.
type StageStartedData struct {
	Node        string `json:"node"`
	HandlerType string `json:"handler_type"`
	Attempt     int    `json:"attempt"`
}

// StageCompletedData is KindStageCompleted's payload.
type StageCompletedData struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

// StageFailedData is KindStageFailed's payload.
type StageFailedData struct {
	Node  string `json:"node"`
	Error string `json:"error"`
}

// StageRetryingData is KindStageRetrying's payload.
type StageRetryingData struct {
	Node    string        `json:"node"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

// EdgeSelectedData is KindEdgeSelected's payload.
type EdgeSelectedData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"` // e.g. "conditional", "preferred_label", "weight", "fallback"
}

// GoalGateCheckedData is KindGoalGateChecked's payload.
type GoalGateCheckedData struct {
	Node        string `json:"node"`
	Satisfied   bool   `json:"satisfied"`
	RetryTarget string `json:"retry_target,omitempty"`
}

// CheckpointSavedData is KindCheckpointSaved's payload.
type CheckpointSavedData struct {
	Path          string `json:"path"`
	CurrentNodeID string `json:"current_node_id"`
}

// ContextUpdatedData is KindContextUpdated's payload.
type ContextUpdatedData struct {
	Keys []string `json:"keys"`
}

func NewPipelineStarted(runID, graphName, startNode string) Event {
	return newEvent(KindPipelineStarted, PipelineStartedData{RunID: runID, GraphName: graphName, StartNode: startNode})
}

func NewPipelineCompleted(runID string, completedNodes []string, steps int, costUSD float64) Event {
	return newEvent(KindPipelineCompleted, PipelineCompletedData{RunID: runID, CompletedNodes: completedNodes, Steps: steps, CostUSD: costUSD})
}

func NewPipelineFailed(runID, node, errMsg string) Event {
	return newEvent(KindPipelineFailed, PipelineFailedData{RunID: runID, Node: node, Error: errMsg})
}

func NewStageStarted(node, handlerType string, attempt int) Event {
	return newEvent(KindStageStarted, StageStartedData{Node: node, HandlerType: handlerType, Attempt: attempt})
}

func NewStageCompleted(node, status string) Event {
	return newEvent(KindStageCompleted, StageCompletedData{Node: node, Status: status})
}

func NewStageFailed(node, errMsg string) Event {
	return newEvent(KindStageFailed, StageFailedData{Node: node, Error: errMsg})
}

func NewStageRetrying(node string, attempt int, delay time.Duration) Event {
	return newEvent(KindStageRetrying, StageRetryingData{Node: node, Attempt: attempt, Delay: delay})
}

func NewEdgeSelected(from, to, reason string) Event {
	return newEvent(KindEdgeSelected, EdgeSelectedData{From: from, To: to, Reason: reason})
}

func NewGoalGateChecked(node string, satisfied bool, retryTarget string) Event {
	return newEvent(KindGoalGateChecked, GoalGateCheckedData{Node: node, Satisfied: satisfied, RetryTarget: retryTarget})
}

func NewCheckpointSaved(path, currentNodeID string) Event {
	return newEvent(KindCheckpointSaved, CheckpointSavedData{Path: path, CurrentNodeID: currentNodeID})
}

func NewContextUpdated(keys []string) Event {
	return newEvent(KindContextUpdated, ContextUpdatedData{Keys: keys})
}

// DefaultCapacity is the default per-subscriber buffer size.
const DefaultCapacity = 256

// Channel is the bounded, many-producer/many-subscriber broadcast bus.
// Emit is non-blocking: with no subscribers it silently drops; with
// subscribers, a full subscriber buffer drops its OLDEST queued event to
// make room for the new one.
type Channel struct {
	capacity int

	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
}

type subscriber struct {
	mu     sync.Mutex
	buf    []Event
	signal chan struct{} // buffered cap 1; closed-over wakeup
}

func newSubscriber(capacity int) *subscriber {
	return &subscriber{buf: make([]Event, 0, capacity), signal: make(chan struct{}, 1)}
}

func (s *subscriber) push(capacity int, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= capacity {
		// drop oldest
		s.buf = append(s.buf[1:], ev)
	} else {
		s.buf = append(s.buf, ev)
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return Event{}, false
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, true
}

// NewChannel constructs a Channel with the given per-subscriber buffer
// capacity; capacity<=0 uses DefaultCapacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{capacity: capacity, subscribers: map[int]*subscriber{}}
}

// Subscription is a handle for reading events and unsubscribing.
type Subscription struct {
	ch *Channel
	id int
	s  *subscriber
}

// Subscribe registers a new subscriber that receives independent copies of
// every event emitted after this call returns.
func (c *Channel) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	s := newSubscriber(c.capacity)
	c.subscribers[id] = s
	return &Subscription{ch: c, id: id, s: s}
}

// Unsubscribe removes the subscription; subsequent emits no longer reach it.
func (sub *Subscription) Unsubscribe() {
	sub.ch.mu.Lock()
	defer sub.ch.mu.Unlock()
	delete(sub.ch.subscribers, sub.id)
}

// Next blocks until an event is available, ctx is done, or returns
// immediately if one is already buffered.
func (sub *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		if ev, ok := sub.s.pop(); ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-sub.s.signal:
			// loop back around and try popping again
		}
	}
}

// TryNext returns immediately: (event, true) if one was buffered, else
// (zero, false).
func (sub *Subscription) TryNext() (Event, bool) {
	return sub.s.pop()
}

// Emit is non-blocking. With no subscribers it silently drops; otherwise
// every current subscriber receives an independent copy, with drop-oldest
// semantics on a full buffer.
func (c *Channel) Emit(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.subscribers {
		s.push(c.capacity, ev)
	}
}

// SubscriberCount reports how many subscriptions are currently active, for
// tests and diagnostics.
func (c *Channel) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}
