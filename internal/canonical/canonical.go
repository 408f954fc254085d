// Package canonical derives stable identities for articles: canonical URLs,
// registrable domains and coarse title fingerprints.
package canonical

import (
	"hash/fnv"
	"net"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

const fingerprintTokens = 30

var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"_ga":     {},
	"_gl":     {},
	"igshid":  {},
	"msclkid": {},
	"yclid":   {},
	"ref_src": {},
}

// Canonicalize normalizes a URL into a deduplication key.
// Input that cannot be parsed as an absolute URL is returned unchanged.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = stripDefaultPort(u.Scheme, strings.ToLower(u.Host))
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = cleanQuery(u.RawQuery)
	u.Path = cleanPath(u.Path)
	u.RawPath = ""

	return u.String()
}

// RegistrableDomain returns the public-suffix aware domain of a URL or bare host.
func RegistrableDomain(raw string) (string, bool) {
	host := Hostname(raw)
	if host == "" {
		return "", false
	}
	if ip := net.ParseIP(host); ip != nil {
		return host, true
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", false
	}
	return domain, true
}

// Hostname extracts the lower-cased host of a URL or bare host, empty on failure.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// TitleFingerprint hashes the first 30 normalized tokens of title and snippet with FNV-1a.
// It is a coarse near-duplicate signal, collisions are tolerated.
func TitleFingerprint(title, snippet string) uint64 {
	var b strings.Builder
	for _, r := range strings.ToLower(title + " " + snippet) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) > fingerprintTokens {
		tokens = tokens[:fingerprintTokens]
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(tokens, " ")))
	return h.Sum64()
}

func stripDefaultPort(scheme, host string) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

func cleanQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values := url.Values{}
	var verbatim []string
	for _, pair := range strings.Split(raw, "&") {
		parsed, err := url.ParseQuery(pair)
		if err != nil {
			// Undecodable pairs are kept verbatim.
			verbatim = append(verbatim, pair)
			continue
		}
		for key, vs := range parsed {
			if isTrackingParam(key) {
				continue
			}
			values[key] = append(values[key], vs...)
		}
	}
	sort.Strings(verbatim)

	// Encode sorts by key.
	encoded := values.Encode()
	if len(verbatim) == 0 {
		return encoded
	}
	if encoded == "" {
		return strings.Join(verbatim, "&")
	}
	return encoded + "&" + strings.Join(verbatim, "&")
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

func cleanPath(p string) string {
	for p == "/amp" || strings.HasPrefix(p, "/amp/") {
		p = strings.TrimPrefix(p, "/amp")
	}
	for strings.HasSuffix(p, "/amp") || strings.HasSuffix(p, "/amp/") {
		p = strings.TrimSuffix(strings.TrimSuffix(p, "/"), "/amp")
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}
