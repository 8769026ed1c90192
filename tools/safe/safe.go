package safe

import (
	"roamlink/logger"
)

// Go starts a new goroutine that recovers from panic,
// so a misbehaving event handler doesn't crash the whole client.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// Call invokes f on the current goroutine with the same recovery.
// Dispatch loops use this so one bad handler doesn't kill the loop.
func Call(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[safe.Call] panic recovered: %v", r)
		}
	}()
	f()
}
