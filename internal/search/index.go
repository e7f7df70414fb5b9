// Package search provides a small, deterministic, concurrency-safe in-memory
// index used to rank listings for free-text queries.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware, accent-insensitive tokenization with optional stop words
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// A document's score is the share of query tokens it contains, where a query
// token also matches any document token it is a prefix of (three runes or
// more). Ties are broken by Jaccard similarity, then by document id.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is one searchable entry.
type Document struct {
	ID   uint
	Text string
}

// Result is a ranked document id with its score in (0,1].
type Result struct {
	ID    uint
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// SpanishStopwords are skipped by indices built with WithStopwords(SpanishStopwords).
var SpanishStopwords = []string{
	"de", "la", "el", "los", "las", "un", "una", "unos", "unas", "y", "o", "en",
	"con", "para", "por", "del", "al", "a", "mi", "su", "muy", "es", "que",
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
	minScore  float64
}

func defaultConfig() config {
	return config{}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.ToLower(strings.TrimSpace(w)))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithMinScore drops results scoring below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     uint
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index from docs. Documents without tokens are skipped.
func NewIndex(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

// TopK returns up to k best-matching documents. k <= 0 means all matches.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id      uint
		score   float64
		jaccard float64
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		hit, exact := matches(qTokens, d.tokens)
		if hit == 0 {
			continue
		}
		score := float64(hit) / float64(qLen)
		if score < i.cfg.minScore {
			continue
		}
		union := float64(qLen + len(d.tokens) - exact)
		buf = append(buf, scored{id: d.id, score: score, jaccard: float64(exact) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].jaccard != buf[b].jaccard {
			return buf[a].jaccard > buf[b].jaccard
		}
		return buf[a].id > buf[b].id
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = Result{ID: buf[j].id, Score: buf[j].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = fold(strings.ToLower(s))
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

// matches counts query tokens found in d, by exact or prefix match, and how
// many of those were exact.
func matches(q, d map[string]struct{}) (hit, exact int) {
	for t := range q {
		if _, ok := d[t]; ok {
			hit++
			exact++
			continue
		}
		if utf8.RuneCountInString(t) < 3 {
			continue
		}
		for w := range d {
			if strings.HasPrefix(w, t) {
				hit++
				break
			}
		}
	}
	return hit, exact
}
