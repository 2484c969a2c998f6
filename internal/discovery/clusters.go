package discovery

import (
	"strings"
	"unicode"
)

// keywordCluster groups terms that count as "the same kind of thing".
// Single-word keywords match whole tokens; multi-word keywords match as
// substrings of the normalized text.
type keywordCluster struct {
	name     string
	keywords []string
}

var industryClusters = []keywordCluster{
	{name: "tech", keywords: []string{
		"technology", "tech", "software", "saas", "ai", "artificial intelligence",
		"machine learning", "cloud", "computing", "internet", "it", "cybersecurity",
		"security", "data", "analytics", "developer", "semiconductor", "hardware",
	}},
	{name: "finance", keywords: []string{
		"finance", "financial", "fintech", "banking", "bank", "payments", "payment",
		"insurance", "insurtech", "investment", "lending", "credit", "wealth",
		"trading", "crypto", "accounting",
	}},
	{name: "retail", keywords: []string{
		"retail", "ecommerce", "e-commerce", "commerce", "consumer goods", "shopping",
		"fashion", "apparel", "grocery", "store", "stores", "cpg",
	}},
	{name: "healthcare", keywords: []string{
		"healthcare", "health", "medical", "biotech", "biotechnology", "pharma",
		"pharmaceutical", "pharmaceuticals", "clinical", "hospital", "medtech",
		"life sciences", "wellness", "diagnostics",
	}},
}

var businessModelClusters = []keywordCluster{
	{name: "b2b", keywords: []string{
		"b2b", "business to business", "business-to-business", "enterprise",
		"saas", "software as a service", "api", "b2b2c",
	}},
	{name: "b2c", keywords: []string{
		"b2c", "business to consumer", "business-to-consumer", "consumer",
		"d2c", "dtc", "direct to consumer", "direct-to-consumer", "retail",
	}},
	{name: "marketplace", keywords: []string{
		"marketplace", "two-sided", "two sided", "platform marketplace",
		"peer to peer", "p2p", "c2c", "exchange",
	}},
}

var regionClusters = []keywordCluster{
	{name: "us", keywords: []string{
		"us", "usa", "u.s.", "united states", "america", "california",
		"new york", "ny", "nyc", "san francisco", "sf", "bay area", "silicon valley",
		"texas", "austin", "boston", "seattle", "chicago", "los angeles", "denver",
	}},
	{name: "eu", keywords: []string{
		"eu", "europe", "european", "uk", "united kingdom", "england", "london",
		"germany", "berlin", "munich", "france", "paris", "netherlands", "amsterdam",
		"spain", "madrid", "ireland", "dublin", "sweden", "stockholm", "switzerland",
		"zurich", "italy", "milan",
	}},
	{name: "asia", keywords: []string{
		"asia", "apac", "china", "beijing", "shanghai", "shenzhen", "japan", "tokyo",
		"india", "bangalore", "bengaluru", "mumbai", "singapore", "korea", "seoul",
		"hong kong", "taiwan", "taipei", "indonesia", "jakarta", "vietnam",
	}},
}

// stopWords are removed before comparing descriptions or queries.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "in": true,
	"is": true, "it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "we": true, "our": true, "their": true, "this": true, "which": true,
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenSet returns the distinct tokens of text.
func tokenSet(text string) map[string]bool {
	tokens := tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// contentWords returns the distinct tokens of text with stop words removed.
func contentWords(text string) map[string]bool {
	set := tokenSet(text)
	for w := range set {
		if stopWords[w] {
			delete(set, w)
		}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// overlap is the fraction of query tokens found in target.
func overlap(query, target map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for w := range query {
		if target[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// matches reports whether text belongs to the cluster.
func (c keywordCluster) matches(text string) bool {
	normalized := " " + strings.Join(tokenize(text), " ") + " "
	tokens := tokenSet(text)
	for _, kw := range c.keywords {
		if strings.ContainsAny(kw, " -.") {
			phrase := " " + strings.Join(tokenize(kw), " ") + " "
			if strings.Contains(normalized, phrase) {
				return true
			}
			continue
		}
		if tokens[kw] {
			return true
		}
	}
	return false
}

// sameCluster reports whether a and b both match at least one common cluster.
func sameCluster(clusters []keywordCluster, a, b string) bool {
	for _, c := range clusters {
		if c.matches(a) && c.matches(b) {
			return true
		}
	}
	return false
}
