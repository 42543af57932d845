package domain

import "github.com/jonboulle/clockwork"

// clock is the package time source, used only to default a missing source
// timestamp during enrichment. Tests freeze it via SetClock so the default
// is deterministic.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
