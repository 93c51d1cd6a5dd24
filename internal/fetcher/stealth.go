package fetcher

import (
	"math/rand"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// Browser header sets rotated alongside the user-agent pool. Each
// template mimics a different real browser fingerprint.
var headerTemplates = []map[string]string{
	{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Accept-Encoding":           "gzip",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Cache-Control":             "max-age=0",
	},
	{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-GB,en;q=0.9",
		"Accept-Encoding": "gzip",
		"Connection":      "keep-alive",
		"Sec-Fetch-Dest":  "document",
		"Sec-Fetch-Mode":  "navigate",
		"Sec-Fetch-Site":  "none",
		"Sec-Fetch-User":  "?1",
	},
	{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9,de;q=0.8",
		"Accept-Encoding":           "gzip",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Pragma":                    "no-cache",
	},
}

// Identity is the transport fingerprint for one attempt: user-agent,
// header set and fresh session cookies.
type Identity struct {
	UserAgent string
	Headers   map[string]string
	Cookies   []*http.Cookie
}

// identityPool hands out a rotated identity per attempt. User-agents
// cycle round-robin; header templates and cookies are randomized.
type identityPool struct {
	agents []string
	rng    *rand.Rand
	next   int
}

func newIdentityPool(agents []string, rng *rand.Rand) *identityPool {
	return &identityPool{agents: agents, rng: rng}
}

func (p *identityPool) Next() *Identity {
	agent := p.agents[p.next%len(p.agents)]
	p.next++

	return &Identity{
		UserAgent: agent,
		Headers:   headerTemplates[p.rng.Intn(len(headerTemplates))],
		Cookies:   sessionCookies(p.rng),
	}
}

// sessionCookies fabricates the cookies a fresh browser session would
// carry, so consecutive attempts do not share an obvious fingerprint.
func sessionCookies(rng *rand.Rand) []*http.Cookie {
	return []*http.Cookie{
		{Name: "session-id", Value: strconv.Itoa(100000000 + rng.Intn(900000000))},
		{Name: "session-token", Value: uuid.NewString()},
	}
}
