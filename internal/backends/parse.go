package backends

import (
	"encoding/json"
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"golang.org/x/net/publicsuffix"
)

// NormalizeDomain reduces a URL or host to its registrable domain (eTLD+1),
// e.g. "https://www.shop.example.co.uk/about" becomes "example.co.uk".
// It returns "" when raw holds no usable host.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.TrimPrefix(host, "www.")
	}
	return domain
}

var titleSeparators = []string{" | ", " - ", " – ", " — ", ": ", " · "}

var genericTitles = map[string]bool{
	"home": true, "homepage": true, "welcome": true, "official site": true, "official website": true,
}

// CleanCompanyName strips page-title decoration such as
// "Stripe | Payment Processing Platform" down to "Stripe".
func CleanCompanyName(title string) string {
	parts := []string{strings.TrimSpace(title)}
	for _, sep := range titleSeparators {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || genericTitles[strings.ToLower(p)] {
			continue
		}
		return p
	}
	return ""
}

// NameFromDomain derives a display name from a domain: "stripe.com" -> "Stripe".
func NameFromDomain(domain string) string {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	label := strings.TrimSuffix(strings.TrimSuffix(domain, suffix), ".")
	if label == "" {
		return ""
	}
	r := []rune(label)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// firstJSONArray returns the first balanced, valid JSON array in text,
// ignoring brackets inside strings. LLM replies often wrap JSON in prose.
func firstJSONArray(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '[' {
			continue
		}
		end := closingBracket(text, start)
		if end < 0 {
			// An unclosed '[' in prose can still precede a real array.
			continue
		}
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// closingBracket returns the index of the ']' matching text[start], or -1.
func closingBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// companyRecord is the loose JSON shape LLM and MCP backends return.
type companyRecord struct {
	Name            string   `json:"name"`
	CompanyName     string   `json:"company_name"`
	Domain          string   `json:"domain"`
	Website         string   `json:"website"`
	URL             string   `json:"url"`
	Description     string   `json:"description"`
	Industry        string   `json:"industry"`
	BusinessModel   string   `json:"business_model"`
	Location        string   `json:"location"`
	EmployeeCount   *int     `json:"employee_count"`
	Similarity      *float64 `json:"similarity"`
	SimilarityScore *float64 `json:"similarity_score"`
}

func (r companyRecord) toMatch(source discovery.Source, query string) (discovery.CompanyMatch, bool) {
	name := strings.TrimSpace(r.CompanyName)
	if name == "" {
		name = strings.TrimSpace(r.Name)
	}
	domain := NormalizeDomain(firstNonEmpty(r.Domain, r.Website, r.URL))
	if name == "" {
		name = NameFromDomain(domain)
	}
	if name == "" {
		return discovery.CompanyMatch{}, false
	}

	m := discovery.NewCompanyMatch(name, source)
	m.Domain = domain
	m.Description = strings.TrimSpace(r.Description)
	m.Industry = strings.TrimSpace(r.Industry)
	m.BusinessModel = strings.TrimSpace(r.BusinessModel)
	m.Location = strings.TrimSpace(r.Location)
	if r.EmployeeCount != nil && *r.EmployeeCount >= 0 {
		m.EmployeeCount = discovery.IntPtr(*r.EmployeeCount)
	}
	switch {
	case r.SimilarityScore != nil:
		m.SimilarityScore = clampScore(*r.SimilarityScore)
	case r.Similarity != nil:
		m.SimilarityScore = clampScore(*r.Similarity)
	}
	m.SearchQueryUsed = query
	return m, true
}

// decodeCompanies accepts either a JSON array of records or an object with
// a "companies" or "results" array.
func decodeCompanies(data []byte) ([]companyRecord, error) {
	var records []companyRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Companies []companyRecord `json:"companies"`
		Results   []companyRecord `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Companies) > 0 {
		return wrapped.Companies, nil
	}
	return wrapped.Results, nil
}

// recordsToMatches converts records, skipping nameless ones and the queried
// company itself.
func recordsToMatches(records []companyRecord, source discovery.Source, query string, req discovery.DiscoveryRequest) []discovery.CompanyMatch {
	self := discovery.NormalizeName(req.CompanyName)
	out := make([]discovery.CompanyMatch, 0, len(records))
	for _, r := range records {
		m, ok := r.toMatch(source, query)
		if !ok || m.NormalizedName() == self {
			continue
		}
		out = append(out, m)
	}
	return out
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
