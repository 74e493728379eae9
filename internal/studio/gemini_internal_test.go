package studio

import "testing"

func TestRateFromMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime string
		want int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000},
		{"audio/pcm;rate=16000", 16000},
		{"audio/L16; rate=48000", 48000},
		{"audio/L16", 24000},
		{"", 24000},
		{"audio/pcm;rate=bogus", 24000},
	}
	for _, tt := range tests {
		if got := rateFromMIME(tt.mime); got != tt.want {
			t.Errorf("rateFromMIME(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}
