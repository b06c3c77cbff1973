// Package audit builds and emits the broker's audit trail.
//
// Every tool invocation produces an ordered sequence of events
// (request.received, policy.decided, provider.called, result.emitted) sharing
// one trace ID. Payloads pass through the redactor before the event is built,
// so no secret or token value can reach a sink.
package audit

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/mcp-auth-broker/common/redact"
	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/config"
)

// Event types emitted by the broker pipeline, in the order they occur.
const (
	EventRequestReceived = "request.received"
	EventPolicyDecided   = "policy.decided"
	EventProviderCalled  = "provider.called"
	EventResultEmitted   = "result.emitted"
)

// Event is the canonical audit envelope.
type Event struct {
	SchemaVersion string          `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	OccurredAt    string          `json:"occurred_at"`
	RequestID     string          `json:"request_id"`
	TraceID       string          `json:"trace_id"`
	RequesterID   string          `json:"requester_id"`
	Service       string          `json:"service"`
	Environment   string          `json:"environment"`
	Redactions    []redact.Record `json:"redactions"`
	Payload       map[string]any  `json:"payload"`
}

// Sink receives every emitted event. Write failures must not disturb the
// request pipeline; implementations log and move on.
type Sink interface {
	Write(evt Event) error
}

// Emitter builds events and fans them out to its sinks while retaining an
// in-memory ordered copy. It is reentrant from a single goroutine; the
// pipeline serializes emission per request by construction.
type Emitter struct {
	sinks  []Sink
	events []Event

	// now is swapped in tests for deterministic timestamps.
	now func() time.Time
}

// NewEmitter creates an Emitter writing to the given sinks. Zero sinks is
// valid; events are then only retained in memory.
func NewEmitter(sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, now: time.Now}
}

// Emit applies the redactor to payload, builds the event envelope, retains it
// and writes it to every sink.
func (e *Emitter) Emit(cfg *config.Config, eventType string, req contract.Request, traceID string, payload map[string]any) Event {
	redacted, records := redact.Payload(payload)
	return e.append(cfg, eventType, req, traceID, redacted.(map[string]any), records)
}

// EmitPreRedacted is used when the caller has already redacted the payload and
// supplies the redaction records itself.
func (e *Emitter) EmitPreRedacted(cfg *config.Config, eventType string, req contract.Request, traceID string, payload map[string]any, redactions []redact.Record) Event {
	if redactions == nil {
		redactions = []redact.Record{}
	}
	return e.append(cfg, eventType, req, traceID, payload, redactions)
}

// Events returns the retained events in emission order.
func (e *Emitter) Events() []Event {
	return e.events
}

func (e *Emitter) append(cfg *config.Config, eventType string, req contract.Request, traceID string, payload map[string]any, redactions []redact.Record) Event {
	evt := Event{
		SchemaVersion: cfg.ContractVersion,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		OccurredAt:    e.now().UTC().Format(time.RFC3339),
		RequestID:     req.RequestID,
		TraceID:       traceID,
		RequesterID:   req.Requester.RequesterID,
		Service:       cfg.ServiceName,
		Environment:   cfg.Environment,
		Redactions:    redactions,
		Payload:       payload,
	}
	e.events = append(e.events, evt)
	for _, sink := range e.sinks {
		if err := sink.Write(evt); err != nil {
			slog.Warn("audit sink write failed", "event_type", evt.EventType, "err", err)
		}
	}
	return evt
}
