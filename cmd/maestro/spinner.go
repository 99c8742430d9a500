package main

import (
	"fmt"
	"strings"
	"time"
)

const spinnerInterval = 120 * time.Millisecond

// startSpinner renders a progress indicator on stdout and returns a stop
// function that blocks until the line has been cleared, so the answer never
// prints over a half-drawn frame.
func startSpinner() func() {
	done := make(chan struct{})
	cleared := make(chan struct{})

	go func() {
		defer close(cleared)
		const frames = `-\|/`
		const label = " thinking"
		for i := 0; ; i = (i + 1) % len(frames) {
			select {
			case <-done:
				fmt.Printf("\r%s\r", strings.Repeat(" ", len(label)+1))
				return
			case <-time.After(spinnerInterval):
				fmt.Printf("\r%c%s", frames[i], label)
			}
		}
	}()

	return func() {
		close(done)
		<-cleared
	}
}
