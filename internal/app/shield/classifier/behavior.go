package classifier

import (
	"fmt"
	"time"
)

// Interaction thresholds. Crossing any one of them confirms a human.
const (
	PointerMoveThreshold = 10
	KeyPressThreshold    = 2
	MinClickDelay        = 100 * time.Millisecond
)

// CounterCeiling caps each interaction counter. Verdicts only look at small
// thresholds, so saturating here changes nothing observable.
const CounterCeiling = 1 << 20

// DefaultAutoConfirmDelay confirms visitors of direct links without interaction.
const DefaultAutoConfirmDelay = time.Second

// EventType is one kind of interaction reported by the page runtime.
type EventType string

const (
	EventPointerMove EventType = "pointer"
	EventClick       EventType = "click"
	EventTouch       EventType = "touch"
	EventKeyPress    EventType = "key"
)

// ParseEventType validates an event name from the wire.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventPointerMove, EventClick, EventTouch, EventKeyPress:
		return t, nil
	default:
		return "", fmt.Errorf("unknown interaction type %q", s)
	}
}

// Event is a batch of interactions of one type. Count below one counts as one.
type Event struct {
	Type  EventType
	Count int
}

// Counters accumulate interactions for one visit.
type Counters struct {
	PointerMoves int `json:"pointer_moves"`
	Clicks       int `json:"clicks"`
	Touches      int `json:"touches"`
	KeyPresses   int `json:"key_presses"`
}

func (c *Counters) add(e Event) {
	n := e.Count
	if n < 1 {
		n = 1
	}
	switch e.Type {
	case EventPointerMove:
		c.PointerMoves = saturatingAdd(c.PointerMoves, n)
	case EventClick:
		c.Clicks = saturatingAdd(c.Clicks, n)
	case EventTouch:
		c.Touches = saturatingAdd(c.Touches, n)
	case EventKeyPress:
		c.KeyPresses = saturatingAdd(c.KeyPresses, n)
	}
}

func saturatingAdd(cur, n int) int {
	if n >= CounterCeiling-cur {
		return CounterCeiling
	}
	return cur + n
}

// humanLike applies the OR'd thresholds. elapsed is time since the session started.
func (c Counters) humanLike(elapsed time.Duration) bool {
	return c.PointerMoves > PointerMoveThreshold ||
		(c.Clicks > 0 && elapsed >= MinClickDelay) ||
		c.Touches >= 1 ||
		c.KeyPresses > KeyPressThreshold
}

// Observe records e into c and returns the possibly upgraded verdict.
// Counters keep accumulating whatever the verdict; only Unknown can change.
func Observe(v Verdict, c *Counters, e Event, elapsed time.Duration) Verdict {
	c.add(e)
	if v != Unknown {
		return v
	}
	if c.humanLike(elapsed) {
		return Human
	}
	return Unknown
}

// AutoConfirm grants Human on direct links once delay has passed, unless the
// static pass already said Bot.
func AutoConfirm(v Verdict, elapsed, delay time.Duration) Verdict {
	if v == Unknown && elapsed >= delay {
		return Human
	}
	return v
}
