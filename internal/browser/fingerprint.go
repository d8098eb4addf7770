package browser

import (
	"math/rand"
	"strings"
)

// Fingerprint is the identity one browsing context presents: user agent,
// viewport, locale and header set. It is picked once per session so all
// navigations within a session look like the same visitor.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int64
	ViewportHeight int64
	Locale         string
	AcceptLanguage string
	Platform       string
}

// Pools of realistic desktop Chrome identities. Kept small on purpose: a
// rare-but-real combination is less suspicious than a random one.
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	}
	viewports = [][2]int64{
		{1920, 1080},
		{1680, 1050},
		{1536, 864},
		{1440, 900},
	}
	acceptLanguages = []string{
		"sv-SE,sv;q=0.9,en-US;q=0.8,en;q=0.7",
		"sv-SE,sv;q=0.9,en;q=0.8",
		"sv,en-US;q=0.9,en;q=0.8",
	}
)

// RandomFingerprint draws a coherent identity from the pools.
func RandomFingerprint(rng *rand.Rand) Fingerprint {
	ua := userAgents[rng.Intn(len(userAgents))]
	vp := viewports[rng.Intn(len(viewports))]
	platform := "Win32"
	switch {
	case strings.Contains(ua, "Macintosh"):
		platform = "MacIntel"
	case strings.Contains(ua, "X11"):
		platform = "Linux x86_64"
	}
	return Fingerprint{
		UserAgent:      ua,
		ViewportWidth:  vp[0],
		ViewportHeight: vp[1],
		Locale:         "sv-SE",
		AcceptLanguage: acceptLanguages[rng.Intn(len(acceptLanguages))],
		Platform:       platform,
	}
}
