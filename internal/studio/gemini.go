package studio

import (
	"context"
	"fmt"
	"mime"
	"strconv"

	"google.golang.org/genai"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Compile-time interface assertion.
var _ Synthesizer = (*Gemini)(nil)

const (
	// DefaultModel is the Gemini text-to-speech model.
	DefaultModel = "gemini-2.5-flash-preview-tts"

	// DefaultVoice is the prebuilt voice used when none is configured.
	DefaultVoice = "Kore"
)

// Gemini synthesises speech with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	voice  string
}

// GeminiOption configures a [Gemini] synthesizer.
type GeminiOption func(*geminiConfig)

type geminiConfig struct {
	model   string
	voice   string
	baseURL string
}

// WithModel overrides [DefaultModel].
func WithModel(m string) GeminiOption {
	return func(c *geminiConfig) {
		if m != "" {
			c.model = m
		}
	}
}

// WithVoice overrides [DefaultVoice].
func WithVoice(v string) GeminiOption {
	return func(c *geminiConfig) {
		if v != "" {
			c.voice = v
		}
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) GeminiOption {
	return func(c *geminiConfig) { c.baseURL = u }
}

// NewGemini creates a synthesizer authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	cfg := geminiConfig{model: DefaultModel, voice: DefaultVoice}
	for _, o := range opts {
		o(&cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("studio: gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.model, voice: cfg.voice}, nil
}

// Synthesize implements [Synthesizer]. The service returns PCM16 mono; the
// rate is read from the part's MIME type and defaults to 24 kHz.
func (g *Gemini) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("gemini: generate content: %w", err)
	}

	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			f := audio.Format{SampleRate: rateFromMIME(p.InlineData.MIMEType), Channels: 1}
			return p.InlineData.Data, f, nil
		}
	}
	return nil, audio.Format{}, ErrNoAudio
}

// rateFromMIME reads the rate parameter of types such as
// "audio/L16;codec=pcm;rate=24000".
func rateFromMIME(t string) int {
	if r, ok := audio.ParsePCMMIMEType(t); ok && r > 0 {
		return r
	}
	if _, params, err := mime.ParseMediaType(t); err == nil {
		if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
			return r
		}
	}
	return audio.OutputRate
}
