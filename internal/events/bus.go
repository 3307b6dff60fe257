// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (tool router, agents, the
// monitoring cycle) to subscribers (MQTT publisher, future metrics
// collector). The bus is nil-safe: calling Publish on a nil *Bus is a
// no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceRouter identifies events from the MCP tool router.
	SourceRouter = "router"
	// SourceExtract identifies events from the data extraction agent.
	SourceExtract = "extract"
	// SourceFollowup identifies events from the follow-up agent.
	SourceFollowup = "followup"
	// SourceMonitor identifies events from the health monitoring agent.
	SourceMonitor = "monitor"
)

// Kind constants describe the type of event within a source.
const (
	// KindServerConnected signals an MCP server completed its handshake.
	// Data: server, tools.
	KindServerConnected = "server_connected"
	// KindServerFailed signals an MCP server handshake failed.
	// Data: server, error.
	KindServerFailed = "server_failed"
	// KindToolCall signals the start of a routed tool call.
	// Data: tool, server.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a routed tool call.
	// Data: tool, server, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindFallbackUsed signals a tool call was served by the local
	// fallback executor instead of a remote server.
	// Data: tool, reason.
	KindFallbackUsed = "fallback_used"

	// KindCycleComplete signals an extraction, monitoring, or follow-up
	// run finished. Data: processed, errors.
	KindCycleComplete = "cycle_complete"
	// KindAlertRaised signals a new health alert was generated.
	// Data: alert_id, company_id, company_name, severity, message.
	KindAlertRaised = "alert_raised"
	// KindFollowupSent signals a follow-up email was dispatched.
	// Data: action_id, company_id, action_type.
	KindFollowupSent = "followup_sent"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// New creates an event bus ready for use.
func New() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to every subscriber whose buffer has room.
// Safe to call on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Full buffer, drop rather than block the publisher.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually Unsubscribe it. bufSize sets the channel
// buffer; the MQTT sink subscribes with 64.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown
// or already-removed channels are ignored. The handful of subscribers
// a deployment has makes the linear scan irrelevant.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
