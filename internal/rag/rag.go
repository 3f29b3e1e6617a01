// Package rag implements the compliance retriever: it builds a query from
// a vulnerability, calls the vector store façade, and formats the hits
// into a bounded context block for prompt assembly.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/diffsec/govern/internal/compliance"
	"github.com/diffsec/govern/internal/embedding"
	"github.com/diffsec/govern/internal/vectordb"
	"github.com/diffsec/govern/internal/vuln"
)

// ErrRetrievalUnavailable wraps any vector-store or embedding-backend
// failure during retrieval, so callers can distinguish "the retrieval
// machinery is down" (empty context, warn, continue generating) from a
// programming error via errors.Is.
var ErrRetrievalUnavailable = errors.New("rag: retrieval unavailable")

// DefaultTopK is the number of chunks retrieved per vulnerability.
const DefaultTopK = 5

// DefaultScoreFloor is the minimum top-hit similarity score below which the
// retriever falls back to the default template context.
const DefaultScoreFloor = 0.5

// MaxQueryChars bounds the single-line query built from a vulnerability.
const MaxQueryChars = 512

// MaxContextChars bounds the formatted context block handed to the prompt
// template; excess chunks are dropped from the tail.
const MaxContextChars = 3000

// ExcerptChars bounds how much of a chunk's text is rendered per line.
const ExcerptChars = 280

// NoEvidenceMarker prefixes the context block when retrieval produced
// nothing usable, so the prompt (and any downstream reviewer) can tell the
// generated policy was not grounded in retrieved framework text.
const NoEvidenceMarker = "[NO COMPLIANCE FRAMEWORK EVIDENCE RETRIEVED]"

// DefaultContext is returned verbatim (after the marker) when the
// collection is empty or the best score falls below the floor.
const DefaultContext = NoEvidenceMarker + "\n" +
	"No relevant compliance framework excerpts were found for this finding. " +
	"The policy below is based on general security best practice only and " +
	"has not been validated against NIST CSF or ISO 27001 Annex A control text."

// Result is what retrieval hands back to the orchestrator: the raw hits (for
// downstream inspection/logging) plus the formatted prompt-ready context.
type Result struct {
	Chunks             []*vectordb.SearchResult
	FormattedContext   string
	UsedDefaultContext bool
}

// Retriever embeds a query built from a vulnerability, searches the vector
// store façade, and formats a length-bounded context block from the hits.
type Retriever struct {
	store    vectordb.Store
	provider embedding.Provider
	topK     int
	floor    float32
}

// New builds a Retriever over store using provider to embed queries. topK
// and scoreFloor fall back to DefaultTopK/DefaultScoreFloor when zero.
func New(store vectordb.Store, provider embedding.Provider, topK int, scoreFloor float32) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if scoreFloor <= 0 {
		scoreFloor = DefaultScoreFloor
	}
	return &Retriever{store: store, provider: provider, topK: topK, floor: scoreFloor}
}

// buildQuery concatenates the vulnerability's title, category/issue-type,
// description, CWE id, and (for SCA) package name; normalises whitespace
// and truncates to MaxQueryChars.
func buildQuery(v vuln.Vulnerability) string {
	parts := []string{v.Title(), v.CategoryOrIssueType(), v.Description(), v.CWEID()}
	if v.Kind == vuln.SCA && v.SCA != nil {
		parts = append(parts, v.SCA.PackageName)
	}

	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	joined := strings.Join(nonEmpty, " ")
	joined = strings.Join(strings.Fields(joined), " ")
	if len(joined) > MaxQueryChars {
		joined = joined[:MaxQueryChars]
	}
	return joined
}

// RetrieveForVulnerability builds a query from v, embeds it, and searches
// the store for the topK most similar compliance chunks. If the collection
// is empty, or the best score falls below the configured floor, it returns
// the fixed default-template context instead.
func (r *Retriever) RetrieveForVulnerability(ctx context.Context, v vuln.Vulnerability) (*Result, error) {
	count, err := r.store.Count()
	if err != nil {
		return nil, fmt.Errorf("%w: checking store size: %v", ErrRetrievalUnavailable, err)
	}
	if count == 0 {
		return &Result{FormattedContext: DefaultContext, UsedDefaultContext: true}, nil
	}

	query := buildQuery(v)
	queryEmbedding, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrievalUnavailable, err)
	}

	results, err := r.store.Search(queryEmbedding, r.topK, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: searching store: %v", ErrRetrievalUnavailable, err)
	}

	if len(results.Results) == 0 || results.Results[0].Score < r.floor {
		return &Result{
			Chunks:             results.Results,
			FormattedContext:   DefaultContext,
			UsedDefaultContext: true,
		}, nil
	}

	return &Result{
		Chunks:           results.Results,
		FormattedContext: FormatContext(results.Results),
	}, nil
}

// FormatContext groups hits by framework, orders each group by descending
// score, and renders a numbered list bounded at MaxContextChars; excess
// chunks are dropped from the tail.
func FormatContext(hits []*vectordb.SearchResult) string {
	byFramework := make(map[compliance.Framework][]*vectordb.SearchResult)
	var frameworkOrder []compliance.Framework
	for _, h := range hits {
		fw := h.Chunk.Framework
		if _, seen := byFramework[fw]; !seen {
			frameworkOrder = append(frameworkOrder, fw)
		}
		byFramework[fw] = append(byFramework[fw], h)
	}

	for _, fw := range frameworkOrder {
		group := byFramework[fw]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
	}

	var b strings.Builder
	n := 1
	for _, fw := range frameworkOrder {
		for _, h := range byFramework[fw] {
			excerpt := h.Chunk.Text
			if len(excerpt) > ExcerptChars {
				excerpt = excerpt[:ExcerptChars]
			}
			line := fmt.Sprintf("[%d] %s %s: %s — %s\n", n, h.Chunk.Framework, h.Chunk.ControlID, h.Chunk.Title, excerpt)
			if b.Len()+len(line) > MaxContextChars {
				return strings.TrimRight(b.String(), "\n")
			}
			b.WriteString(line)
			n++
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
