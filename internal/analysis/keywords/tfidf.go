package keywords

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

const minTokenLength = 3

// Tokenize 将文本小写化，按 [a-z0-9] 以外的字符切分，并过滤短词与停用词。
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}

	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) < minTokenLength || IsStopWord(field) {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// TermFrequency is count(term)/len(doc). Callers must not pass an empty doc.
func TermFrequency(term string, doc []string) float64 {
	count := 0
	for _, token := range doc {
		if token == term {
			count++
		}
	}
	return float64(count) / float64(len(doc))
}

// InverseDocumentFrequency is ln(N / (df + 1)). It goes negative when the term is
// in every document; that is kept as is. An empty corpus yields 0.
func InverseDocumentFrequency(term string, corpus [][]string) float64 {
	if len(corpus) == 0 {
		return 0
	}
	docsWithTerm := 0
	for _, doc := range corpus {
		if slices.Contains(doc, term) {
			docsWithTerm++
		}
	}
	return math.Log(float64(len(corpus)) / float64(docsWithTerm+1))
}

// document is a unit to rank, identified by id.
type document struct {
	id      string
	content string
}

// topKeywords scores each document's distinct terms against the corpus and keeps
// the best topN per document. Ties are ordered by term.
func topKeywords(docs []document, corpus []string, topN int) map[string][]Keyword {
	tokenizedCorpus := make([][]string, len(corpus))
	for i, text := range corpus {
		tokenizedCorpus[i] = Tokenize(text)
	}

	results := make(map[string][]Keyword, len(docs))
	for _, doc := range docs {
		results[doc.id] = rankDocument(Tokenize(doc.content), tokenizedCorpus, topN)
	}
	return results
}

func rankDocument(tokens []string, corpus [][]string, topN int) []Keyword {
	if len(tokens) == 0 {
		return []Keyword{}
	}

	seen := make(map[string]struct{}, len(tokens))
	scored := make([]Keyword, 0, len(tokens))
	for _, term := range tokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		score := TermFrequency(term, tokens) * InverseDocumentFrequency(term, corpus)
		scored = append(scored, Keyword{Term: term, Score: score})
	}

	slices.SortFunc(scored, func(a, b Keyword) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}
