package service

import "time"

// Poll scheduling modes.
const (
	pollNormal  = "NORMAL"
	pollBackoff = "BACKOFF"
	pollFixed   = "FIXED"
)

const (
	defaultPollInterval = 60 * time.Second
	minPollInterval     = 10 * time.Second
	maxBackoffInterval  = 3600 * time.Second
)

// cycleResult is what one finished poll cycle reports to the state machine.
type cycleResult struct {
	commFailure bool // network failure, timeout, 5xx, auth trouble
	anyOnline   bool // at least one known device reported online
}

// pollState is the Normal/Backoff/Fixed scheduling state machine. Mutated only
// by the poller; no network, no clocks of its own, so transitions are testable
// in isolation.
type pollState struct {
	base     time.Duration
	interval time.Duration
	mode     string
	failures int // consecutive communication failures
	atCap    int // failing cycles scheduled at the backoff cap
}

func newPollState(base time.Duration) *pollState {
	if base <= 0 {
		base = defaultPollInterval
	}
	if base < minPollInterval {
		base = minPollInterval
	}
	return &pollState{base: base, interval: base, mode: pollNormal}
}

// observe feeds one cycle outcome into the machine. Recovery is not gradual:
// the first cycle that both succeeds communicatively and sees an online device
// resets to Normal immediately. Failing cycles double the interval up to the
// cap; a failure while already capped drops to Fixed scheduling.
func (s *pollState) observe(r cycleResult) {
	if r.commFailure {
		s.failures++
	} else {
		s.failures = 0
	}

	if !r.commFailure && r.anyOnline {
		s.mode = pollNormal
		s.interval = s.base
		s.atCap = 0
		return
	}

	// Communication failure, or every known device offline.
	switch s.mode {
	case pollFixed:
		// stays Fixed until a recovery cycle
	case pollBackoff:
		if s.interval >= maxBackoffInterval {
			s.atCap++
			if s.atCap > 1 {
				s.mode = pollFixed
			}
			return
		}
		s.interval = capInterval(s.interval * 2)
	default:
		s.mode = pollBackoff
		s.interval = capInterval(s.base * 2)
	}
}

func capInterval(d time.Duration) time.Duration {
	if d > maxBackoffInterval {
		return maxBackoffInterval
	}
	return d
}

// next returns the delay before the next cycle. In Fixed mode that is the time
// until the next occurrence of 12:00 or 00:00 on the host's local clock.
func (s *pollState) next(now time.Time) time.Duration {
	if s.mode != pollFixed {
		return s.interval
	}
	return untilNextFixedSlot(now)
}

func untilNextFixedSlot(now time.Time) time.Duration {
	local := now.Local()
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, local.Location())
	if local.Before(noon) {
		return noon.Sub(local)
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()).AddDate(0, 0, 1)
	return midnight.Sub(local)
}
