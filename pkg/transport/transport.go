// Package transport defines the connection between the local audio pipeline
// and a remote streaming conversational service.
//
// A [Transport] carries encoded capture frames out and delivers a single
// ordered stream of [Event] values back: model audio, interruption and turn
// signals, and transcripts. Keeping every inbound kind on one channel
// preserves the order in which the service produced them, which the playback
// side relies on.
package transport

import (
	"context"
	"errors"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// ErrClosed is returned by Send on a closed transport.
var ErrClosed = errors.New("transport: closed")

// EventKind identifies the payload carried by an [Event].
type EventKind int

const (
	// EventAudio carries one frame of model speech in Frame.
	EventAudio EventKind = iota

	// EventInterrupted signals that the service detected the user talking
	// over the model. Scheduled model audio should be flushed.
	EventInterrupted

	// EventTurnComplete signals that the model finished its turn.
	EventTurnComplete

	// EventTranscript carries recognized or synthesized text in Role/Text.
	EventTranscript

	// EventError carries a non-fatal error reported by the service in Err.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn_complete"
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Transcript speaker roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Event is one inbound message from the remote service.
type Event struct {
	Kind EventKind

	// Frame is set for EventAudio. Its Data is still base64 text; decoding
	// belongs to the consumer.
	Frame audio.EncodedFrame

	// Role and Text are set for EventTranscript.
	Role string
	Text string

	// Err is set for EventError.
	Err error
}

// SessionConfig holds per-connection options.
type SessionConfig struct {
	// Model overrides the dialer's default model when non-empty.
	Model string

	// Voice is the prebuilt voice name, e.g. "Kore".
	Voice string

	// Instructions is the system instruction text.
	Instructions string
}

// Transport is an open connection to the remote service.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Send delivers one encoded capture frame. It may block until the frame
	// is written or ctx is done.
	Send(ctx context.Context, frame audio.EncodedFrame) error

	// Events returns the inbound event stream. The channel is closed when
	// the connection ends for any reason; Err then reports why.
	Events() <-chan Event

	// Err returns the error that terminated the connection, or nil if it was
	// closed locally or is still open.
	Err() error

	// Close terminates the connection. Idempotent.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Transport, error)
}

// DialerFunc adapts a function to the [Dialer] interface.
type DialerFunc func(ctx context.Context, cfg SessionConfig) (Transport, error)

// Dial implements [Dialer].
func (f DialerFunc) Dial(ctx context.Context, cfg SessionConfig) (Transport, error) {
	return f(ctx, cfg)
}
