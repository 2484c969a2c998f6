package discovery

import "strings"

// Size filter values understood by applyFilters. Other values are ignored.
const (
	SizeStartup    = "startup"
	SizeEnterprise = "enterprise"

	startupMaxEmployees    = 100
	enterpriseMinEmployees = 1000
)

// applyFilters keeps the matches that satisfy req's filters, then truncates
// to req.MaxResults. Input order is preserved.
func applyFilters(matches []CompanyMatch, req DiscoveryRequest) []CompanyMatch {
	out := make([]CompanyMatch, 0, len(matches))
	for _, m := range matches {
		if !passesFilters(m, req) {
			continue
		}
		out = append(out, m)
		if req.MaxResults > 0 && len(out) == req.MaxResults {
			break
		}
	}
	return out
}

func passesFilters(m CompanyMatch, req DiscoveryRequest) bool {
	if m.SimilarityScore < req.MinSimilarityScore {
		return false
	}
	if !containsFold(m.Industry, req.IndustryFilter) {
		return false
	}
	if !containsFold(m.BusinessModel, req.BusinessModelFilter) {
		return false
	}
	if !containsFold(m.Location, req.LocationFilter) {
		return false
	}
	return matchesSize(m.EmployeeCount, req.SizeFilter)
}

// containsFold reports whether value contains filter, ignoring case. An empty
// filter passes everything; an empty value fails any non-empty filter.
func containsFold(value, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	if strings.TrimSpace(value) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(filter))
}

func matchesSize(employees *int, filter string) bool {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case SizeStartup:
		return employees == nil || *employees < startupMaxEmployees
	case SizeEnterprise:
		return employees != nil && *employees > enterpriseMinEmployees
	default:
		return true
	}
}
