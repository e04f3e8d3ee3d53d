// internal/lockservice/callbacks.go
package lockservice

// Callbacks receives lock lifecycle notifications. Implementations must be
// safe for concurrent use and must not block.
type Callbacks interface {
	// OnAttempt is called before every TrySet, attempt starts at 0
	OnAttempt(key string, attempt int)

	// OnAcquired is called when a lock is obtained
	OnAcquired(key string)

	// OnBusy is called when the retry budget is exhausted without acquiring the lock
	OnBusy(key string)

	// OnReleased is called after a release; owned is false when the lease had
	// already expired or been taken over by another holder
	OnReleased(key string, owned bool)
}

// NoOpCallbacks implements Callbacks with empty methods
type NoOpCallbacks struct{}

func (NoOpCallbacks) OnAttempt(string, int) {}
func (NoOpCallbacks) OnAcquired(string) {}
func (NoOpCallbacks) OnBusy(string) {}
func (NoOpCallbacks) OnReleased(string, bool) {}
