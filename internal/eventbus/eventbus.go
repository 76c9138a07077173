// Package eventbus implements the Event Bus (C8): tenant-scoped pub/sub
// for ingest pipeline progress events, consumed by the Realtime Gateway
// (C9) and relayed to WebSocket clients. Delivery is at-most-once to live
// subscribers — the Metadata Store remains the authoritative source of
// Job/Document state; the bus only carries advisory progress.
package eventbus

import (
	"context"
	"time"
)

// EventKind names one of the lifecycle transitions a Job Runner stage
// publishes, matching spec.md §6.3's event payload.
type EventKind string

const (
	EventParseStarted  EventKind = "parse_started"
	EventParseProgress EventKind = "parse_progress"
	EventParseDone     EventKind = "parse_done"
	EventParseFailed   EventKind = "parse_failed"

	EventChunkStarted  EventKind = "chunk_started"
	EventChunkProgress EventKind = "chunk_progress"
	EventChunkDone     EventKind = "chunk_done"
	EventChunkFailed   EventKind = "chunk_failed"

	EventEmbedStarted  EventKind = "embed_started"
	EventEmbedProgress EventKind = "embed_progress"
	EventEmbedDone     EventKind = "embed_done"
	EventEmbedFailed   EventKind = "embed_failed"

	EventConnected EventKind = "connected"
)

// Event is the JSON payload carried over both the bus and the WebSocket
// relay, per spec.md §6.3.
type Event struct {
	Event      EventKind `json:"event"`
	JobID      string    `json:"job_id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	TenantID   string    `json:"tenant_id"`
	Kind       string    `json:"kind,omitempty"`
	Progress   int       `json:"progress"`
	Error      *string   `json:"error"`
	Timestamp  time.Time `json:"ts"`
}

// topic returns the tenant-scoped channel name every backend publishes and
// subscribes to, isolating tenants at the channel-naming level so a
// subscriber can never accidentally receive another tenant's events.
func topic(tenantID string) string {
	return tenantID + ".jobs"
}

// Subscription is a live feed of Events for one tenant. Cancel releases the
// underlying subscription and closes Events.
type Subscription struct {
	Events <-chan Event
	Cancel func()
}

// Bus is the capability contract every backend implements.
type Bus interface {
	// Publish delivers event to tenantID's live subscribers. Per spec.md
	// §4.8, publish failures are advisory: callers should log and continue
	// rather than fail the job, since the Metadata Store stays authoritative.
	Publish(ctx context.Context, tenantID string, event Event) error
	Subscribe(ctx context.Context, tenantID string) (Subscription, error)
	Ping(ctx context.Context) error
}
