// Package gemini implements [transport.Transport] for Google's Gemini Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live endpoint
// and exchanges JSON messages according to the BidiGenerateContent protocol.
// Capture audio is sent as base64 PCM media chunks; model audio is surfaced as
// [transport.EventAudio] events with the base64 text left intact.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/transport"
)

// Compile-time assertions that Dialer and conn satisfy the transport interfaces.
var _ transport.Dialer = (*Dialer)(nil)
var _ transport.Transport = (*conn)(nil)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	eventBuffer = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(d *Dialer) { d.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(d *Dialer) { d.baseURL = url }
}

// WithTranscription requests input and output transcripts from the service.
func WithTranscription(enabled bool) Option {
	return func(d *Dialer) { d.transcription = enabled }
}

// ── Dialer ─────────────────────────────────────────────────────────────────────

// Dialer opens Gemini Live connections.
type Dialer struct {
	apiKey        string
	model         string
	baseURL       string
	transcription bool
}

// New creates a new Gemini Live Dialer with the given API key and options.
func New(apiKey string, opts ...Option) *Dialer {
	d := &Dialer{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Model returns the default model used when SessionConfig.Model is empty.
func (d *Dialer) Model() string { return d.model }

// Dial establishes a new Gemini Live session with the given configuration.
// The returned Transport is ready to accept audio immediately after the
// setup message is sent.
func (d *Dialer) Dial(ctx context.Context, cfg transport.SessionConfig) (transport.Transport, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		d.baseURL, url.QueryEscape(d.apiKey),
	)

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	// Model audio arrives in messages well above the default 32 KiB limit.
	ws.SetReadLimit(16 << 20)

	connCtx, connCancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		events: make(chan transport.Event, eventBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: connCancel,
	}

	model := cfg.Model
	if model == "" {
		model = d.model
	}
	if err := c.sendSetup(model, cfg, d.transcription); err != nil {
		connCancel()
		ws.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go c.receiveLoop()
	go c.keepaliveLoop()

	return c, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── conn ───────────────────────────────────────────────────────────────────────

type conn struct {
	ws     *websocket.Conn
	events chan transport.Event

	mu     sync.Mutex
	errVal error
	done   chan struct{}
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (c *conn) sendSetup(model string, cfg transport.SessionConfig, transcribe bool) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if transcribe {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}

	return c.writeJSON(c.ctx, msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them.
// It owns events: it closes the channel when it exits.
func (c *conn) receiveLoop() {
	defer c.closeEvents()

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			// If the connection context was cancelled, exit cleanly.
			if c.ctx.Err() != nil {
				return
			}
			c.setErr(fmt.Errorf("gemini: read: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("gemini: skipping malformed message", "err", err)
			continue
		}

		if !c.handleServerMessage(&msg) {
			return
		}
	}
}

// handleServerMessage emits the events carried by msg in protocol order. It
// reports false once the connection is shutting down.
func (c *conn) handleServerMessage(msg *serverMessage) bool {
	if msg.Error != nil {
		text := "unknown error"
		if msg.Error.Message != "" {
			text = msg.Error.Message
		}
		if !c.emit(transport.Event{Kind: transport.EventError, Err: fmt.Errorf("gemini: %s", text)}) {
			return false
		}
	}
	if msg.ServerContent != nil {
		return c.handleServerContent(msg.ServerContent)
	}
	return true
}

func (c *conn) handleServerContent(sc *serverContent) bool {
	// An interruption invalidates audio that is already queued locally, so it
	// is surfaced before any audio in the same message.
	if sc.Interrupted {
		if !c.emit(transport.Event{Kind: transport.EventInterrupted}) {
			return false
		}
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				if !c.emit(transport.Event{Kind: transport.EventAudio, Frame: inboundFrame(p.InlineData)}) {
					return false
				}
			}
			if p.Text != "" {
				if !c.emit(transport.Event{Kind: transport.EventTranscript, Role: transport.RoleModel, Text: p.Text}) {
					return false
				}
			}
		}
	}

	// User speech recognition result.
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		if !c.emit(transport.Event{Kind: transport.EventTranscript, Role: transport.RoleUser, Text: sc.InputTranscription.Text}) {
			return false
		}
	}

	// Model output transcription (text version of audio output).
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		if !c.emit(transport.Event{Kind: transport.EventTranscript, Role: transport.RoleModel, Text: sc.OutputTranscription.Text}) {
			return false
		}
	}

	if sc.TurnComplete {
		return c.emit(transport.Event{Kind: transport.EventTurnComplete})
	}
	return true
}

// inboundFrame builds the frame for one inlineData part. The rate comes from
// the MIME type when present, otherwise the service's fixed output rate.
func inboundFrame(d *inlineData) audio.EncodedFrame {
	rate := audio.OutputRate
	if r, ok := audio.ParsePCMMIMEType(d.MIMEType); ok && r > 0 {
		rate = r
	}
	mime := d.MIMEType
	if mime == "" {
		mime = audio.PCMMIMEType(rate)
	}
	return audio.EncodedFrame{
		Data:       d.Data,
		MIMEType:   mime,
		SampleRate: rate,
		Channels:   1,
	}
}

func (c *conn) emit(ev transport.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (c *conn) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			_ = c.ws.Ping(pingCtx)
			cancel()
		}
	}
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

func (c *conn) closeEvents() {
	c.closeOnce.Do(func() {
		close(c.events)
	})
}

// ── transport.Transport methods ────────────────────────────────────────────────

// Send delivers one capture frame to the model as a realtime media chunk.
func (c *conn) Send(ctx context.Context, frame audio.EncodedFrame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.mu.Unlock()

	mime := frame.MIMEType
	if mime == "" {
		mime = audio.PCMMIMEType(frame.SampleRate)
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: mime, Data: frame.Data},
			},
		},
	}
	if err := c.writeJSON(ctx, msg); err != nil {
		return fmt.Errorf("gemini: send: %w", err)
	}
	return nil
}

// Events returns the channel on which inbound events arrive.
func (c *conn) Events() <-chan transport.Event { return c.events }

// Err returns the first non-nil error that caused the connection to terminate.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close terminates the connection and releases all resources. Idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(c.done) // signals keepaliveLoop via done channel
	c.ws.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
