package scrape

import (
	"net/http"
	"net/url"
	"strings"
)

// Verdict is the rate-limit detector's classification of one navigation.
type Verdict struct {
	Blocked bool
	Reason  string
}

// RateLimitDetector classifies completed navigations against known anti-bot
// signatures. Titles are matched broadly; body text only against a narrow
// set of exact phrases, because page bodies legitimately mention words like
// "blocked" in match commentary.
type RateLimitDetector struct {
	titlePhrases []string
	bodyPhrases  []string
}

// Challenge wording observed on the target site and common CDN interstitials.
var (
	defaultTitlePhrases = []string{
		"rate limit",
		"too many requests",
		"captcha",
		"blocked",
		"just a moment",
		"attention required",
		"checking your browser",
		"please wait",
		"access denied",
	}
	defaultBodyPhrases = []string{
		"you have been rate limited",
		"your request has been blocked",
		"verify you are a human",
		"cf-challenge",
	}
)

// NewRateLimitDetector builds a detector with the default signature lists.
func NewRateLimitDetector() *RateLimitDetector {
	return &RateLimitDetector{
		titlePhrases: defaultTitlePhrases,
		bodyPhrases:  defaultBodyPhrases,
	}
}

// Inspect classifies a finished navigation. Any single signal is enough.
func (d *RateLimitDetector) Inspect(visit PageVisit) Verdict {
	if visit.StatusCode == http.StatusTooManyRequests {
		return Verdict{Blocked: true, Reason: "http 429"}
	}
	title := strings.ToLower(visit.Title)
	for _, phrase := range d.titlePhrases {
		if strings.Contains(title, phrase) {
			return Verdict{Blocked: true, Reason: "title: " + phrase}
		}
	}
	if redirectedAway(visit.RequestedURL, visit.FinalURL) {
		return Verdict{Blocked: true, Reason: "redirected away from target host"}
	}
	body := strings.ToLower(visit.HTML)
	for _, phrase := range d.bodyPhrases {
		if strings.Contains(body, phrase) {
			return Verdict{Blocked: true, Reason: "body: " + phrase}
		}
	}
	return Verdict{}
}

// redirectedAway reports whether the navigation ended on a foreign host.
// Subdomain moves within the target site are fine.
func redirectedAway(requested, final string) bool {
	if requested == "" || final == "" {
		return false
	}
	reqURL, err := url.Parse(requested)
	if err != nil {
		return false
	}
	finURL, err := url.Parse(final)
	if err != nil {
		return false
	}
	reqHost := baseDomain(reqURL.Hostname())
	finHost := baseDomain(finURL.Hostname())
	if reqHost == "" || finHost == "" {
		return false
	}
	return reqHost != finHost
}

func baseDomain(host string) string {
	host = strings.ToLower(host)
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
