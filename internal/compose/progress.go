package compose

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// startProgress periodically rewrites a progress line on stderr while workers
// run. The returned stop function prints the final count and a newline.
// Progress output never goes to stdout, which stays clean for piping.
func (e *Engine) startProgress(done *int64) func() {
	if !e.cfg.Progress {
		return func() {}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				fmt.Fprintf(os.Stderr, "\rGenerating: %d/%d", atomic.LoadInt64(done), e.cfg.Count)
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(quit)
		fmt.Fprintf(os.Stderr, "\rGenerating: %d/%d\n", atomic.LoadInt64(done), e.cfg.Count)
	}
}
