package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Transports close their event channel some time after Close returns; a
// session drains it so a late sender is never left blocked.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
