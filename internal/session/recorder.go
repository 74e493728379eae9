package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
	"github.com/MrWong99/voxbridge/pkg/audio/wav"
)

// turnRecorder accumulates the model audio of one turn and writes it as a
// WAV file when the turn completes. Owned by the loop goroutine.
type turnRecorder struct {
	dir    string
	prefix string

	format  audio.Format
	samples []float32
	turn    int
}

func newTurnRecorder(dir, sessionID string) *turnRecorder {
	prefix := sessionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return &turnRecorder{dir: dir, prefix: prefix}
}

func (t *turnRecorder) add(buf *playback.Buffer) {
	if len(t.samples) > 0 && buf.Format != t.format {
		// The output format is fixed per run; a change means a new stream.
		t.samples = t.samples[:0]
	}
	t.format = buf.Format
	t.samples = append(t.samples, buf.Samples...)
}

// discard drops the partial turn.
func (t *turnRecorder) discard() {
	t.samples = t.samples[:0]
}

// flush writes the accumulated turn and returns its path. An empty turn
// writes nothing and returns "".
func (t *turnRecorder) flush() (string, error) {
	if len(t.samples) == 0 {
		return "", nil
	}
	t.turn++
	path := filepath.Join(t.dir, fmt.Sprintf("%s-turn-%03d.wav", t.prefix, t.turn))
	pcm := audio.FloatToPCM16(t.samples)
	t.samples = t.samples[:0]

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", fmt.Errorf("session: create recording dir: %w", err)
	}
	if err := wav.WriteFile(path, pcm, t.format); err != nil {
		return "", fmt.Errorf("session: write %q: %w", path, err)
	}
	return path, nil
}
