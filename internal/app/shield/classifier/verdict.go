// Package classifier decides whether a visitor is an automated agent or a human.
//
// The static pass runs once per visit from the declared agent string and an
// environment probe. It can only answer Bot or Unknown. The behavioural pass
// upgrades Unknown to Human from interaction counters gathered while the visitor
// waits on the gate. Nothing ever downgrades a verdict.
package classifier

// Verdict is the trust outcome for one visit.
type Verdict int

const (
	Unknown Verdict = iota
	Bot
	Human
)

func (v Verdict) String() string {
	switch v {
	case Bot:
		return "bot"
	case Human:
		return "human"
	default:
		return "unknown"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
