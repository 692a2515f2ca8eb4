package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when an aborted [Recorder] or a closed
// [Stream] may still hold undelivered values.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
