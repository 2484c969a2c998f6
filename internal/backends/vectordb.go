package backends

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/vectorstore"
	"go.uber.org/zap"
)

// Company metadata keys stored alongside each profile document.
const (
	metaCompanyName   = "company_name"
	metaDomain        = "domain"
	metaIndustry      = "industry"
	metaBusinessModel = "business_model"
	metaLocation      = "location"
	metaEmployeeCount = "employee_count"
	metaDescription   = "description"
)

const (
	defaultVectorTopK     = 20
	defaultVectorMinScore = 0.2
)

// VectorDBConfig tunes the vector database adapter.
type VectorDBConfig struct {
	// TopK is the number of neighbours fetched per search (default 20).
	TopK int
	// MinScore drops hits scoring below it (default 0.2).
	MinScore float64
}

// VectorDB serves the database phase of discovery from a vectorstore.Store
// holding company profiles.
type VectorDB struct {
	store    vectorstore.Store
	topK     int
	minScore float64
	logger   *zap.Logger
}

// NewVectorDB wraps store.
func NewVectorDB(store vectorstore.Store, cfg VectorDBConfig, logger *zap.Logger) (*VectorDB, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: vector store required", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultVectorTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = defaultVectorMinScore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorDB{
		store:    store,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		logger:   logger.With(zap.String("backend", string(discovery.SourceVectorDatabase))),
	}, nil
}

// SearchSimilarCompanies implements discovery.VectorStore.
//
// When the queried company itself is stored, its profile text is used as the
// search query so neighbours are found by business similarity rather than by
// name. The stored profile is returned too; the orchestrator recognises it by
// name and uses it as the target.
func (v *VectorDB) SearchSimilarCompanies(ctx context.Context, companyName string) ([]discovery.CompanyMatch, error) {
	results, err := v.store.Search(ctx, companyName, v.topK)
	if err != nil {
		return nil, fmt.Errorf("searching vector store: %w", err)
	}

	self := discovery.NormalizeName(companyName)
	for _, r := range results {
		if discovery.NormalizeName(metaString(r.Metadata, metaCompanyName)) != self || r.Content == "" {
			continue
		}
		refined, err := v.store.Search(ctx, r.Content, v.topK)
		if err != nil {
			v.logger.Warn("profile search failed, using name search", zap.Error(err))
			break
		}
		results = refined
		v.logger.Debug("searched by stored profile", zap.String("company", companyName))
		break
	}

	matches := make([]discovery.CompanyMatch, 0, len(results))
	for _, r := range results {
		m, ok := resultToMatch(r)
		if !ok {
			continue
		}
		isTarget := m.NormalizedName() == self
		if !isTarget && (r.Score <= 0 || float64(r.Score) < v.minScore) {
			continue
		}
		m.SearchQueryUsed = companyName
		matches = append(matches, m)
	}
	return matches, nil
}

// IndexCompany stores or replaces one company profile.
func (v *VectorDB) IndexCompany(ctx context.Context, m discovery.CompanyMatch) (string, error) {
	ids, err := v.IndexCompanies(ctx, []discovery.CompanyMatch{m})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// IndexCompanies stores or replaces company profiles. Documents are keyed by
// domain when known, else by normalized name, so re-indexing is idempotent.
func (v *VectorDB) IndexCompanies(ctx context.Context, companies []discovery.CompanyMatch) ([]string, error) {
	if len(companies) == 0 {
		return nil, vectorstore.ErrEmptyDocuments
	}
	docs := make([]vectorstore.Document, 0, len(companies))
	for _, c := range companies {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		docs = append(docs, companyDocument(c))
	}
	ids, err := v.store.AddDocuments(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("indexing companies: %w", err)
	}
	v.logger.Info("indexed companies", zap.Int("count", len(ids)))
	return ids, nil
}

// Count returns the number of stored profiles.
func (v *VectorDB) Count(ctx context.Context) (int, error) {
	return v.store.Count(ctx)
}

// HealthCheck implements discovery.HealthChecker.
func (v *VectorDB) HealthCheck(ctx context.Context) error {
	return v.store.HealthCheck(ctx)
}

// CompanyDocumentID returns the document ID used for a company.
func CompanyDocumentID(m discovery.CompanyMatch) string {
	if d := NormalizeDomain(m.Domain); d != "" {
		return d
	}
	return m.NormalizedName()
}

func companyDocument(m discovery.CompanyMatch) vectorstore.Document {
	meta := map[string]interface{}{
		metaCompanyName: m.CompanyName,
	}
	setIf := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			meta[key] = val
		}
	}
	setIf(metaDomain, NormalizeDomain(m.Domain))
	setIf(metaIndustry, m.Industry)
	setIf(metaBusinessModel, m.BusinessModel)
	setIf(metaLocation, m.Location)
	setIf(metaDescription, m.Description)
	if m.EmployeeCount != nil {
		meta[metaEmployeeCount] = *m.EmployeeCount
	}

	return vectorstore.Document{
		ID:       CompanyDocumentID(m),
		Content:  profileText(m),
		Metadata: meta,
	}
}

// profileText is the text embedded for a company.
func profileText(m discovery.CompanyMatch) string {
	var b strings.Builder
	b.WriteString(m.CompanyName)
	line := func(label, val string) {
		if val = strings.TrimSpace(val); val != "" {
			b.WriteString("\n")
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(val)
		}
	}
	line("Industry", m.Industry)
	line("Business model", m.BusinessModel)
	line("Location", m.Location)
	line("Description", m.Description)
	return b.String()
}

func resultToMatch(r vectorstore.SearchResult) (discovery.CompanyMatch, bool) {
	name := metaString(r.Metadata, metaCompanyName)
	if name == "" {
		return discovery.CompanyMatch{}, false
	}
	m := discovery.NewCompanyMatch(name, discovery.SourceVectorDatabase)
	m.Domain = metaString(r.Metadata, metaDomain)
	m.Industry = metaString(r.Metadata, metaIndustry)
	m.BusinessModel = metaString(r.Metadata, metaBusinessModel)
	m.Location = metaString(r.Metadata, metaLocation)
	m.Description = metaString(r.Metadata, metaDescription)
	if n, ok := metaInt(r.Metadata, metaEmployeeCount); ok && n >= 0 {
		m.EmployeeCount = discovery.IntPtr(n)
	}
	m.SimilarityScore = clampScore(float64(r.Score))
	m.RawData["document_id"] = r.ID
	return m, true
}

func metaString(meta map[string]interface{}, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// metaInt reads an integer that may have been stored as a number or, by
// stores with string-only metadata, as text.
func metaInt(meta map[string]interface{}, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

var (
	_ discovery.VectorStore   = (*VectorDB)(nil)
	_ discovery.HealthChecker = (*VectorDB)(nil)
)
