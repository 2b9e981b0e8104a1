package session

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Method names an equivalent way for the page runtime to leave for the destination.
type Method string

const (
	MethodHref    Method = "href"    // location.href = url
	MethodAssign  Method = "assign"  // location.assign(url)
	MethodReplace Method = "replace" // location.replace(url)
	MethodAnchor  Method = "anchor"  // synthetic <a> click
)

// Navigation is the instruction handed to the page runtime, exactly once per session.
type Navigation struct {
	Method Method `json:"method"`
	URL    string `json:"url,omitempty"`
	// Codes carries the URL as char codes when js-obfuscation is enabled.
	Codes []int `json:"codes,omitempty"`
}

// Obfuscated moves the URL into Codes.
func (n Navigation) Obfuscated() Navigation {
	codes := make([]int, 0, len(n.URL))
	for _, r := range n.URL {
		codes = append(codes, int(r))
	}
	return Navigation{Method: n.Method, Codes: codes}
}

// Target returns the destination whichever encoding is in use.
func (n Navigation) Target() string {
	if n.URL != "" || len(n.Codes) == 0 {
		return n.URL
	}
	var b strings.Builder
	for _, c := range n.Codes {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// Strategy performs navigation to an already normalised URL.
type Strategy interface {
	Execute(url string) Navigation
}

// MethodStrategy is a Strategy that always uses one Method.
type MethodStrategy Method

func (m MethodStrategy) Execute(url string) Navigation {
	return Navigation{Method: Method(m), URL: url}
}

var (
	DirectStrategy  Strategy = MethodStrategy(MethodHref)
	AssignStrategy  Strategy = MethodStrategy(MethodAssign)
	ReplaceStrategy Strategy = MethodStrategy(MethodReplace)
	AnchorStrategy  Strategy = MethodStrategy(MethodAnchor)
)

// AllStrategies is the equivalent set Ultra-Link sessions pick from.
var AllStrategies = []Strategy{DirectStrategy, AssignStrategy, ReplaceStrategy, AnchorStrategy}

// StrategyPicker chooses the Strategy for one session.
type StrategyPicker interface {
	Pick(sessionID string) Strategy
}

// FixedPicker always returns the same Strategy.
type FixedPicker struct {
	Strategy Strategy
}

func (p FixedPicker) Pick(string) Strategy {
	if p.Strategy == nil {
		return DirectStrategy
	}
	return p.Strategy
}

// RandomPicker picks uniformly among Strategies per session.
type RandomPicker struct {
	Strategies []Strategy
	// Intn defaults to math/rand/v2.IntN.
	Intn func(n int) int
}

func (p RandomPicker) Pick(string) Strategy {
	set := p.Strategies
	if len(set) == 0 {
		set = AllStrategies
	}
	intn := p.Intn
	if intn == nil {
		intn = rand.IntN
	}
	return set[intn(len(set))]
}

// PickerFor maps a configured policy name to a picker: "random" or one of the
// method names.
func PickerFor(policy string) (StrategyPicker, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", "random":
		return RandomPicker{}, nil
	case string(MethodHref), "direct":
		return FixedPicker{Strategy: DirectStrategy}, nil
	case string(MethodAssign):
		return FixedPicker{Strategy: AssignStrategy}, nil
	case string(MethodReplace):
		return FixedPicker{Strategy: ReplaceStrategy}, nil
	case string(MethodAnchor):
		return FixedPicker{Strategy: AnchorStrategy}, nil
	default:
		return nil, fmt.Errorf("session: unknown navigation policy %q", policy)
	}
}

// NormalizeURL prefixes https:// when the destination has no http(s) scheme.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return u
	}
	return "https://" + strings.TrimPrefix(u, "//")
}
