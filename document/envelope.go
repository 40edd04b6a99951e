// Package document implements the wire envelope used to carry RMI requests,
// replies and progress reports between a controller and an agent.
package document

import (
	"encoding/json"
	"time"

	"go.bryk.io/rmi/errors"
	"go.bryk.io/rmi/ulid"
)

// ProtocolVersion is the protocol tag stamped on envelopes minted by this
// module when none is provided.
const ProtocolVersion = "1.0"

// Kind identifies the three well-known document shapes carried by an
// Envelope.
type Kind string

// Supported envelope kinds.
const (
	Request  Kind = "request"
	Reply    Kind = "reply"
	Progress Kind = "progress"
)

// Routing captures the `[from, to]` pair used to address an envelope.
type Routing [2]string

// Envelope is the self-describing document exchanged between a controller
// and an agent. Once written to the pending queue an envelope must be
// treated as immutable; callers that need a modified copy should decode a
// fresh instance.
type Envelope struct {
	SN       string           `json:"sn"`
	TS       int64            `json:"ts,omitempty"`
	URL      string           `json:"url,omitempty"`
	Window   *Window          `json:"window,omitempty"`
	Any      any              `json:"any,omitempty"`
	ReplyTo  string           `json:"replyto,omitempty"`
	Version  string           `json:"version"`
	Routing  Routing          `json:"routing"`
	Kind     Kind             `json:"kind"`
	Secret   string           `json:"secret,omitempty"`
	TTL      int64            `json:"ttl,omitempty"`
	Timeout  int64            `json:"timeout,omitempty"`
	Request  json.RawMessage  `json:"request,omitempty"`
	Result   json.RawMessage  `json:"result,omitempty"`
	Progress json.RawMessage  `json:"progress,omitempty"`

	// extra preserves any top-level field not recognized above so that
	// round-tripping an envelope through Dump/Load never drops data.
	extra map[string]json.RawMessage
}

// New returns an empty envelope of the given kind with a freshly minted
// serial number and the module's protocol version already set.
func New(kind Kind, routing Routing) (*Envelope, error) {
	id, err := ulid.New()
	if err != nil {
		return nil, errors.Wrap(err, "generate serial number")
	}
	return &Envelope{
		SN:      id.String(),
		Version: ProtocolVersion,
		Routing: routing,
		Kind:    kind,
	}, nil
}

// SetAny attaches the opaque correlator returned to the caller verbatim.
func (e *Envelope) SetAny(v any) { e.Any = v }

// Dump produces a stable JSON encoding of the envelope, merging back any
// unknown fields captured when the envelope was loaded.
func (e *Envelope) Dump() ([]byte, error) {
	type alias Envelope
	base, err := json.Marshal((*alias)(e))
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	if len(e.extra) == 0 {
		return base, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	for k, v := range e.extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Load fills the envelope fields from a JSON-encoded document, preserving
// any field not part of the known schema.
func Load(raw []byte) (*Envelope, error) {
	e := &Envelope{}
	type alias Envelope
	if err := json.Unmarshal(raw, (*alias)(e)); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	for _, known := range []string{
		"sn", "ts", "url", "window", "any", "replyto", "version", "routing",
		"kind", "secret", "ttl", "timeout", "request", "result", "progress",
	} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.extra = all
	}

	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}

// Validate checks the structural invariants a decoded envelope must
// satisfy, returning an InvalidDocument error describing the first
// violation found. Invariants that need external context the envelope
// itself does not carry — signature verification (§4.J) and window
// expiry against the tracker (§3) — are checked by the consumer pipeline
// after Load, not here.
func (e *Envelope) Validate() error {
	if e.SN == "" {
		return &InvalidDocument{Code: CodeSNMissing, Description: "envelope carries no serial number"}
	}
	if e.Version != ProtocolVersion {
		return &InvalidDocument{Code: CodeVersionUnsupported, Description: "unsupported protocol version: " + e.Version}
	}
	return nil
}

// Equal reports whether two envelopes share the same identity (serial
// number). Per §3 of the data model, identity is by `sn` alone.
func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.SN == other.SN
}

// Stamp sets the `ts`/`url` fields assigned when an envelope is enqueued,
// per the pending-queue `add` operation (§4.H).
func (e *Envelope) Stamp(url string, now time.Time) {
	e.URL = url
	e.TS = now.Unix()
}
