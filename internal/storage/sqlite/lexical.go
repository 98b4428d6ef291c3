package sqlite

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// lexicalIndex owns the two bleve indices the Lexical Index component
// maintains per store: one over content item text, one over a synthetic
// per-fact searchable string. Both are file-backed alongside the sqlite
// file so a single store directory stays portable.
type lexicalIndex struct {
	content bleve.Index
	facts   bleve.Index
}

type contentDoc struct {
	Text string `json:"text"`
}

type factDoc struct {
	Text string `json:"text"`
}

func bleveMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	// "en" is bleve's built-in Unicode-tokenizing, English-stemming
	// analyzer; using it satisfies the Unicode+stemming contract without
	// hand-assembling a custom analyzer chain.
	m.DefaultAnalyzer = "en"
	return m
}

func openOrCreateBleve(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		return bleve.Open(path)
	}
	return bleve.New(path, bleveMapping())
}

func newLexicalIndex(sqlitePath string) (*lexicalIndex, error) {
	contentPath := sqlitePath + ".content.bleve"
	factsPath := sqlitePath + ".facts.bleve"

	contentIdx, err := openOrCreateBleve(contentPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening content lexical index: %w", err)
	}
	factsIdx, err := openOrCreateBleve(factsPath)
	if err != nil {
		contentIdx.Close()
		return nil, fmt.Errorf("sqlite: opening fact lexical index: %w", err)
	}
	return &lexicalIndex{content: contentIdx, facts: factsIdx}, nil
}

func (l *lexicalIndex) close() error {
	if err := l.content.Close(); err != nil {
		l.facts.Close()
		return err
	}
	return l.facts.Close()
}

// IndexContentItem adds (or replaces) one content item's searchable text.
func (d *DB) IndexContentItem(ctx context.Context, item types.ContentItem) error {
	if err := d.lexical.content.Index(item.ID, contentDoc{Text: item.RawText}); err != nil {
		return fmt.Errorf("sqlite: indexing content item: %w", err)
	}
	return nil
}

// IndexFact (re)indexes a fact's synthetic searchable string: subject name
// ⊕ predicate ⊕ object ⊕ receipts, per the lexical index's fact-search
// contract. The object term is the entity's canonical name when the
// object resolved to an entity, the same projection GetFact-adjacent reads
// use via FactsByIDsProjected's ObjectDisplay.
func (d *DB) IndexFact(ctx context.Context, f types.Fact, subjectName string, receipts []types.ProvenanceReceipt) error {
	var b strings.Builder
	b.WriteString(subjectName)
	b.WriteByte(' ')
	b.WriteString(f.Predicate)
	b.WriteByte(' ')
	switch {
	case f.Object.IsEntity():
		if obj, err := d.GetEntity(ctx, *f.Object.EntityID); err == nil {
			b.WriteString(obj.CanonicalName)
		}
	case f.Object.Literal != nil:
		b.WriteString(*f.Object.Literal)
	}
	for _, r := range receipts {
		b.WriteByte(' ')
		b.WriteString(r.Quote)
	}
	if err := d.lexical.facts.Index(f.ID, factDoc{Text: b.String()}); err != nil {
		return fmt.Errorf("sqlite: indexing fact: %w", err)
	}
	return nil
}

// SearchContent runs a free-text query over content item text, returning
// ids ordered by descending score with a stable tie-break on id so that
// identical corpora and queries always produce identical orderings.
func (d *DB) SearchContent(ctx context.Context, queryText string, limit int) ([]storage.ScoredID, error) {
	return search(d.lexical.content, queryText, limit)
}

// SearchFacts runs a free-text query over the synthetic per-fact text.
func (d *DB) SearchFacts(ctx context.Context, queryText string, limit int) ([]storage.ScoredID, error) {
	return search(d.lexical.facts, queryText, limit)
}

func search(idx bleve.Index, queryText string, limit int) ([]storage.ScoredID, error) {
	q := bleve.NewMatchQuery(queryText)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lexical search: %w", err)
	}
	out := make([]storage.ScoredID, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, storage.ScoredID{ID: h.ID, Score: h.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
