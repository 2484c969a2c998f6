package discovery

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"
)

// MaxQueriesPerBackend caps the queries generated for one backend.
const MaxQueriesPerBackend = 3

// QueryContext adds optional hints to generated queries.
type QueryContext struct {
	Industry string
	Location string
}

// queryData is the template input.
type queryData struct {
	Company  string
	Industry string
	Location string
}

// Query templates keyed by backend name. Each template renders one query per
// non-empty line.
var defaultQueryTemplates = map[string]string{
	string(SourcePerplexity): `What companies are most similar to {{.Company}}{{with .Industry}} in the {{.}} industry{{end}}?
Who are the main competitors of {{.Company}}{{with .Location}} in {{.}}{{end}}?
Which companies offer alternatives to {{.Company}}'s products and services?`,

	string(SourceTavily): `companies similar to {{.Company}} business model and market{{with .Industry}} {{.}}{{end}}
{{.Company}} competitors market analysis{{with .Location}} {{.}}{{end}}
{{.Company}} alternative companies research`,

	string(SourceSearchDroid): `{{.Company}} competitors
{{.Company}} similar companies{{with .Industry}} {{.}}{{end}}
{{.Company}} alternatives{{with .Location}} {{.}}{{end}}`,

	string(SourceGoogleSearch): `"{{.Company}}" competitors
companies like "{{.Company}}"{{with .Industry}} {{.}}{{end}}
"{{.Company}}" alternatives{{with .Location}} {{.}}{{end}}`,
}

const genericQueryTemplate = `companies similar to {{.Company}}
{{.Company}} competitors
{{.Company}} alternatives`

// QueryGenerator produces backend-specific search queries for a company.
type QueryGenerator struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	generic   *template.Template
	logger    *zap.Logger
}

// NewQueryGenerator parses the built-in templates.
func NewQueryGenerator(logger *zap.Logger) *QueryGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &QueryGenerator{
		templates: make(map[string]*template.Template, len(defaultQueryTemplates)),
		logger:    logger,
	}
	for name, text := range defaultQueryTemplates {
		g.templates[name] = template.Must(template.New(name).Parse(text))
	}
	g.generic = template.Must(template.New("generic").Parse(genericQueryTemplate))
	return g
}

// SetTemplate overrides the queries for toolName. Each non-empty line of the
// rendered template is one query.
func (g *QueryGenerator) SetTemplate(toolName, text string) error {
	t, err := template.New(toolName).Parse(text)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.templates[toolName] = t
	g.mu.Unlock()
	return nil
}

// Generate returns up to MaxQueriesPerBackend queries for toolName. Unknown
// tools get generic phrasing. A template error or empty output falls back to
// GenericQueries.
func (g *QueryGenerator) Generate(companyName, toolName string, qc QueryContext) []string {
	company := strings.TrimSpace(companyName)
	if company == "" {
		return nil
	}

	g.mu.RLock()
	t, ok := g.templates[toolName]
	g.mu.RUnlock()
	if !ok {
		t = g.generic
	}

	queries, err := render(t, queryData{
		Company:  company,
		Industry: strings.TrimSpace(qc.Industry),
		Location: strings.TrimSpace(qc.Location),
	})
	if err != nil || len(queries) == 0 {
		if err != nil {
			g.logger.Debug("query template failed, using generic queries",
				zap.String("tool", toolName),
				zap.Error(err))
		}
		return GenericQueries(company)
	}
	return queries
}

func render(t *template.Template, data queryData) ([]string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(buf.String(), "\n") {
		q := strings.Join(strings.Fields(line), " ")
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == MaxQueriesPerBackend {
			break
		}
	}
	return out, nil
}

// GenericQueries is the fallback query set.
func GenericQueries(companyName string) []string {
	return []string{
		"companies similar to " + companyName,
		companyName + " competitors",
		companyName + " alternatives",
	}
}
