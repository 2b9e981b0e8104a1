package classifier

import "strings"

// ProbeResult holds the environment signals a real browser is expected to show.
type ProbeResult struct {
	GraphicsContext   bool `json:"graphics_context"`
	Plugins           bool `json:"plugins"`
	ScreenConsistent  bool `json:"screen_consistent"`
	PermissionsAPI    bool `json:"permissions_api"`
	AutomationMarkers bool `json:"automation_markers"`
}

// TrustCount is the number of browser-like signals, absence of automation markers included.
func (p ProbeResult) TrustCount() int {
	n := 0
	for _, ok := range []bool{p.GraphicsContext, p.Plugins, p.ScreenConsistent, p.PermissionsAPI, !p.AutomationMarkers} {
		if ok {
			n++
		}
	}
	return n
}

// TrustedProbe is a probe result with every signal in the visitor's favour.
var TrustedProbe = ProbeResult{GraphicsContext: true, Plugins: true, ScreenConsistent: true, PermissionsAPI: true}

// EnvironmentProbe exposes the signals the static pass needs and nothing more.
type EnvironmentProbe interface {
	Probe() ProbeResult
}

// HeaderGetter reads a request header by name; fiber's Ctx.Get fits.
type HeaderGetter func(key string) string

// HeaderProbe derives the environment signals from what a browser sends on a
// top-level navigation. Each signal maps to a header family that HTTP clients
// and link unfurlers rarely bother to fake.
type HeaderProbe struct {
	Get HeaderGetter
}

// Probe implements EnvironmentProbe.
func (h HeaderProbe) Probe() ProbeResult {
	if h.Get == nil {
		return ProbeResult{}
	}

	accept := strings.ToLower(h.Get("Accept"))
	encoding := strings.ToLower(h.Get("Accept-Encoding"))
	chUA := strings.ToLower(h.Get("Sec-CH-UA"))
	agent := strings.ToLower(h.Get("User-Agent"))

	// Navigations from a rendering engine advertise the image formats it can paint.
	graphics := chUA != "" || strings.Contains(accept, "image/")
	screen := h.Get("Sec-Fetch-Dest") == "document" || h.Get("Upgrade-Insecure-Requests") == "1"
	automation := strings.Contains(chUA, "headless") ||
		strings.Contains(agent, "headless") ||
		strings.Contains(agent, "webdriver") ||
		h.Get("X-Automation") != ""

	return ProbeResult{
		GraphicsContext:   graphics,
		Plugins:           strings.TrimSpace(h.Get("Accept-Language")) != "",
		ScreenConsistent:  screen,
		PermissionsAPI:    strings.Contains(encoding, "br") || strings.Contains(encoding, "gzip"),
		AutomationMarkers: automation,
	}
}

// StaticProbe returns a fixed result; handy when signals were gathered elsewhere.
type StaticProbe ProbeResult

// Probe implements EnvironmentProbe.
func (s StaticProbe) Probe() ProbeResult {
	return ProbeResult(s)
}
