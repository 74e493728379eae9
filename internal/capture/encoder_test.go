package capture_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/voxbridge/internal/capture"
	"github.com/MrWong99/voxbridge/pkg/audio"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

type recordingSink struct {
	mu     sync.Mutex
	frames []audio.EncodedFrame
	refuse bool
}

func (r *recordingSink) sink(f audio.EncodedFrame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	r.frames = append(r.frames, f)
	return true
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestEncoder_EncodesActiveBlocks(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	enc := capture.NewEncoder(mono16k, rec.sink)
	enc.SetActive(true)

	block := []float32{0, 0.5, -0.5, 1}
	if !enc.HandleBlock(block) {
		t.Fatal("HandleBlock returned false for active encoder")
	}
	if rec.count() != 1 {
		t.Fatalf("frames sent = %d; want 1", rec.count())
	}

	f := rec.frames[0]
	if f.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", f.MIMEType)
	}
	if f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("format = %s; want 16000Hz mono", f.Format())
	}
	if want := audio.EncodeBase64(audio.FloatToPCM16(block)); f.Data != want {
		t.Errorf("Data = %q; want %q", f.Data, want)
	}
}

func TestEncoder_OneFramePerBlock(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	enc := capture.NewEncoder(mono16k, rec.sink)
	enc.SetActive(true)

	block := make([]float32, 4096)
	for range 5 {
		enc.HandleBlock(block)
	}
	if rec.count() != 5 {
		t.Errorf("frames = %d; want 5", rec.count())
	}
	if s := enc.Stats(); s.Encoded != 5 {
		t.Errorf("Stats.Encoded = %d; want 5", s.Encoded)
	}
}

func TestEncoder_InactiveSkipsBeforeEncoding(t *testing.T) {
	t.Parallel()

	called := false
	enc := capture.NewEncoder(mono16k, func(audio.EncodedFrame) bool {
		called = true
		return true
	})

	if enc.HandleBlock([]float32{0.1}) {
		t.Error("HandleBlock returned true while inactive")
	}
	if called {
		t.Error("sink called while inactive")
	}
	if s := enc.Stats(); s.Encoded != 0 || s.Skipped != 1 {
		t.Errorf("Stats = %+v; want 0 encoded, 1 skipped", s)
	}
}

func TestEncoder_MutedSkipsBeforeEncoding(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	enc := capture.NewEncoder(mono16k, rec.sink)
	enc.SetActive(true)

	if prev := enc.SetMuted(true); prev {
		t.Error("SetMuted returned previous=true on fresh encoder")
	}
	if !enc.Muted() {
		t.Fatal("Muted() = false after SetMuted(true)")
	}
	enc.HandleBlock(make([]float32, 2048))
	if rec.count() != 0 {
		t.Errorf("frames while muted = %d; want 0", rec.count())
	}
	if s := enc.Stats(); s.Encoded != 0 {
		t.Errorf("Stats.Encoded while muted = %d; want 0", s.Encoded)
	}

	enc.SetMuted(false)
	enc.HandleBlock(make([]float32, 2048))
	if rec.count() != 1 {
		t.Errorf("frames after unmute = %d; want 1", rec.count())
	}
}

func TestEncoder_RefusedFrameIsDropped(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{refuse: true}
	enc := capture.NewEncoder(mono16k, rec.sink)
	enc.SetActive(true)

	for range 3 {
		if enc.HandleBlock([]float32{0.1, 0.2}) {
			t.Error("HandleBlock returned true for refused frame")
		}
	}
	if s := enc.Stats(); s.Dropped != 3 || s.Encoded != 3 {
		t.Errorf("Stats = %+v; want 3 encoded, 3 dropped", s)
	}
}

func TestEncoder_ConcurrentControl(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	enc := capture.NewEncoder(mono16k, rec.sink)
	enc.SetActive(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			enc.HandleBlock([]float32{0.1})
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			enc.SetMuted(i%2 == 0)
		}
	}()
	wg.Wait()

	s := enc.Stats()
	if s.Encoded+s.Skipped != 200 {
		t.Errorf("encoded+skipped = %d; want 200", s.Encoded+s.Skipped)
	}
}
