package main

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
)

// controller is the part of the session driven from the keyboard.
type controller interface {
	SetMuted(muted bool) bool
	Muted() bool
	Interrupt() int
}

// readControls reads one command per line from r until EOF or quit:
//
//	m  toggle microphone mute
//	i  interrupt the model
//	q  quit
func readControls(r io.Reader, c controller, quit func()) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "m":
			muted := !c.Muted()
			c.SetMuted(muted)
			slog.Info("microphone", "muted", muted)
		case "i":
			n := c.Interrupt()
			slog.Info("interrupted model", "buffers", n)
		case "q":
			quit()
			return
		case "":
		default:
			slog.Info("unknown command: m = mute, i = interrupt, q = quit")
		}
	}
}
