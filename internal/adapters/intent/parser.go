// Package intent provides a rule-based IntentParser. It recognises the target identifiers,
// platform names and depth hints that appear in free-form investigation queries.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

var (
	emailRe    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	urlRe      = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)
	ethRe      = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	btcRe      = regexp.MustCompile(`\b(?:bc1[a-z0-9]{25,59}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`)
	ipv4Re     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	domainRe   = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}\b`)
	handleRe   = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_.]{2,30})`)
	hashtagRe  = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_]{2,100})`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
	platformRe = regexp.MustCompile(
		`(?i)\b(tiktok|instagram|twitter|youtube|facebook|linkedin|reddit|github|telegram)\s+` +
			`(?:user|account|profile|channel|handle)?\s*@?([A-Za-z0-9_.]{2,30})\b`)
	imageExtRe = regexp.MustCompile(`(?i)\.(?:jpe?g|png|gif|webp|heic|tiff?)(?:\?.*)?$`)
)

var platformAliases = map[string]string{
	"tiktok":    "tiktok",
	"instagram": "instagram",
	"insta":     "instagram",
	"twitter":   "twitter",
	"youtube":   "youtube",
	"facebook":  "facebook",
	"linkedin":  "linkedin",
	"reddit":    "reddit",
	"github":    "github",
	"telegram":  "telegram",
}

var depthHints = map[string]model.Depth{
	"quick":      model.DepthShallow,
	"quickly":    model.DepthShallow,
	"shallow":    model.DepthShallow,
	"brief":      model.DepthShallow,
	"deep":       model.DepthDeep,
	"thorough":   model.DepthDeep,
	"full":       model.DepthDeep,
	"exhaustive": model.DepthDeep,
}

var stopwords = map[string]bool{
	"investigate": true, "investigation": true, "find": true, "search": true, "look": true,
	"lookup": true, "about": true, "the": true, "for": true, "and": true, "who": true,
	"person": true, "named": true, "called": true, "please": true, "check": true, "on": true,
	"research": true, "everything": true, "info": true, "information": true, "profile": true,
}

// Options configures a Parser.
type Options struct {
	Logger *slog.Logger
}

// Parser is a deterministic IntentParser.
type Parser struct {
	logger *slog.Logger
}

var _ core.IntentParser = (*Parser)(nil)

// New creates a Parser.
func New(opts Options) *Parser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "intent_parser")}
}

// ParseIntent extracts an intent from query. The request type is only set when the query
// names a platform for a handle; otherwise it is inferred from the target downstream.
// Queries without any recognisable identifier are treated as a person's name.
func (p *Parser) ParseIntent(ctx context.Context, query string) (model.Intent, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return model.Intent{}, ErrEmptyQuery
	}

	var in model.Intent
	rest := q

	if m := urlRe.FindString(rest); m != "" {
		rest = strings.Replace(rest, m, " ", 1)
		if imageExtRe.MatchString(m) {
			in.Target.ImageURL = m
		} else if host := hostOf(m); host != "" {
			in.Target.Domain = registrableDomain(host)
		}
	}
	if m := emailRe.FindString(rest); m != "" {
		in.Target.Email = strings.ToLower(m)
		rest = strings.Replace(rest, m, " ", 1)
	}
	if m := ethRe.FindString(rest); m != "" {
		in.Target.EthereumAddress = m
		rest = strings.Replace(rest, m, " ", 1)
	}
	if m := btcRe.FindString(rest); m != "" {
		in.Target.BitcoinAddress = m
		rest = strings.Replace(rest, m, " ", 1)
	}
	for _, m := range ipv4Re.FindAllString(rest, -1) {
		if ip := net.ParseIP(m); ip != nil {
			in.Target.IPAddress = ip.String()
			rest = strings.Replace(rest, m, " ", 1)
			break
		}
	}
	if in.Target.Domain == "" {
		for _, m := range domainRe.FindAllString(rest, -1) {
			if d := registrableDomain(m); d != "" {
				in.Target.Domain = d
				rest = strings.Replace(rest, m, " ", 1)
				break
			}
		}
	}

	if m := platformRe.FindStringSubmatch(rest); m != nil {
		in.Target.Username = m[2]
		in.Type = model.RequestTypeProfile
	}
	if m := handleRe.FindStringSubmatch(rest); m != nil {
		in.Target.Username = m[1]
		rest = strings.Replace(rest, "@"+m[1], " ", 1)
	}
	if m := hashtagRe.FindStringSubmatch(rest); m != nil {
		in.Target.Hashtag = m[1]
		rest = strings.Replace(rest, "#"+m[1], " ", 1)
	}
	if m := phoneRe.FindString(rest); m != "" && countDigits(m) >= 8 {
		in.Target.Phone = strings.TrimSpace(m)
		rest = strings.Replace(rest, m, " ", 1)
	}

	in.Platforms = platforms(q)
	if len(in.Platforms) > 0 && in.Target.Username != "" {
		in.Type = model.RequestTypeProfile
	}
	in.Depth = depth(q)

	if in.Target.IsEmpty() {
		if name := nameFrom(rest); name != "" {
			in.Target.Name = name
			in.Type = model.RequestTypePerson
		} else {
			in.Target.Custom = q
		}
	}

	p.logger.DebugContext(ctx, "parsed intent",
		"type", in.Type,
		"platforms", in.Platforms,
		"depth", in.Depth,
	)
	return in, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// registrableDomain reduces host to its eTLD+1. Hosts without an ICANN public suffix
// (file names such as report.pdf) are rejected.
func registrableDomain(host string) string {
	host = strings.ToLower(strings.Trim(host, "."))
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	if _, icann := publicsuffix.PublicSuffix(host); !icann {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return d
}

func platforms(q string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range words(q) {
		if p, ok := platformAliases[w]; ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func depth(q string) model.Depth {
	for _, w := range words(q) {
		if d, ok := depthHints[w]; ok {
			return d
		}
	}
	return model.DepthMedium
}

// nameFrom takes the first two remaining words that are not filler.
func nameFrom(rest string) string {
	var parts []string
	for _, w := range strings.Fields(rest) {
		w = strings.Trim(w, ".,;:!?\"'()")
		lw := strings.ToLower(w)
		if len(w) <= 2 || stopwords[lw] || depthHints[lw] != "" || platformAliases[lw] != "" {
			continue
		}
		parts = append(parts, w)
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " ")
}

func words(q string) []string {
	return strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
