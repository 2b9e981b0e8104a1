package classifier

import (
	"fmt"
	"strings"
)

// DefaultMinTrust is the lowest probe trust count still treated as a possible browser.
const DefaultMinTrust = 2

// crawlerMarkers are matched case-insensitively against the declared agent string.
var crawlerMarkers = []string{
	"bot",
	"crawl",
	"spider",
	"slurp",
	"facebookexternalhit",
	"facebookcatalog",
	"whatsapp",
	"telegram",
	"skypeuripreview",
	"embedly",
	"quora link preview",
	"bingpreview",
	"vkshare",
	"bitlypreview",
	"outbrain",
	"nuzzel",
	"w3c_validator",
	"lighthouse",
	"headless",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"python-requests",
	"python-urllib",
	"curl/",
	"wget/",
	"go-http-client",
	"okhttp",
	"axios/",
	"node-fetch",
	"java/",
	"libwww",
}

// aiAgentMarkers are only consulted when the link enables ai-detection.
var aiAgentMarkers = []string{
	"gptbot",
	"chatgpt-user",
	"oai-searchbot",
	"claudebot",
	"claude-web",
	"anthropic-ai",
	"ccbot",
	"perplexity",
	"bytespider",
	"google-extended",
	"cohere-ai",
	"amazonbot",
	"youbot",
	"diffbot",
	"meta-externalagent",
}

// Options tune the static pass for one link.
type Options struct {
	AIDetection bool
	MinTrust    int
}

// Result is the static verdict plus what caused it.
type Result struct {
	Verdict Verdict
	Reason  string
	Trust   int
}

// ClassifyStatic returns Bot for known crawler agents or a low-trust environment,
// Unknown otherwise. It never returns Human.
func ClassifyStatic(agent string, probe EnvironmentProbe, opts Options) Result {
	minTrust := opts.MinTrust
	if minTrust <= 0 {
		minTrust = DefaultMinTrust
	}

	lowered := strings.ToLower(strings.TrimSpace(agent))
	if lowered == "" {
		return Result{Verdict: Bot, Reason: "missing agent string"}
	}

	if marker, ok := matchMarker(lowered, crawlerMarkers); ok {
		return Result{Verdict: Bot, Reason: "crawler agent: " + marker}
	}
	if opts.AIDetection {
		if marker, ok := matchMarker(lowered, aiAgentMarkers); ok {
			return Result{Verdict: Bot, Reason: "ai agent: " + marker}
		}
	}

	var env ProbeResult
	if probe != nil {
		env = probe.Probe()
	}
	trust := env.TrustCount()
	if trust < minTrust {
		return Result{Verdict: Bot, Reason: fmt.Sprintf("low environment trust %d/%d", trust, minTrust), Trust: trust}
	}

	return Result{Verdict: Unknown, Reason: "no automation signals", Trust: trust}
}

// IsKnownCrawler reports whether agent matches the crawler list alone.
func IsKnownCrawler(agent string) bool {
	_, ok := matchMarker(strings.ToLower(agent), crawlerMarkers)
	return ok
}

func matchMarker(agent string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(agent, m) {
			return m, true
		}
	}
	return "", false
}
