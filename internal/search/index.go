// Package search ranks short documents, such as FAQ questions, against a
// free-text query. An Index is immutable once built and safe for concurrent
// use; it never logs.
//
// A document's score is the Jaccard similarity of the folded word sets of the
// query and the document, |Q ∩ D| / |Q ∪ D|. When one of the document's
// keyword phrases occurs in the query the score is raised to the keyword
// floor. Ties go to the shorter document, then to the smaller id.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultK is the result count used when TopK is given k <= 0.
const DefaultK = 3

// Doc is an indexable document.
type Doc struct {
	ID       string
	Text     string
	Keywords []string
}

// Result is a matched document id and its score in (0, 1].
type Result struct {
	ID    string
	Score float64
}

// Index answers ranked queries.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// Option tunes NewIndex.
type Option func(*settings)

type settings struct {
	stop  wordSet
	floor float64
}

func defaults() settings { return settings{floor: 0.6} }

// WithStopwords drops the given words from documents and queries.
func WithStopwords(words []string) Option {
	return func(s *settings) {
		set := wordSet{}
		for _, w := range words {
			if w = fold(strings.TrimSpace(w)); w != "" {
				set[w] = struct{}{}
			}
		}
		if len(set) > 0 {
			s.stop = set
		}
	}
}

// WithKeywordFloor sets the score of a keyword hit. Values outside (0, 1]
// are ignored.
func WithKeywordFloor(f float64) Option {
	return func(s *settings) {
		if f > 0 && f <= 1 {
			s.floor = f
		}
	}
}

type wordSet map[string]struct{}

type entry struct {
	id       string
	words    wordSet
	phrases  []string
	textSize int
}

type jaccardIndex struct {
	s       settings
	entries []entry
}

// NewIndex indexes docs. A document yielding no words and no keywords is
// dropped.
func NewIndex(docs []Doc, opts ...Option) Index {
	s := defaults()
	for _, o := range opts {
		o(&s)
	}
	idx := &jaccardIndex{s: s, entries: make([]entry, 0, len(docs))}
	for _, d := range docs {
		e := entry{
			id:       d.ID,
			words:    words(d.Text+" "+strings.Join(d.Keywords, " "), s.stop),
			textSize: len(d.Text),
		}
		for _, k := range d.Keywords {
			if k = strings.TrimSpace(fold(k)); k != "" {
				e.phrases = append(e.phrases, k)
			}
		}
		if len(e.words) > 0 || len(e.phrases) > 0 {
			idx.entries = append(idx.entries, e)
		}
	}
	return idx
}

func (x *jaccardIndex) Len() int { return len(x.entries) }

// score rates e against the query words q and the folded query text.
func (x *jaccardIndex) score(e entry, q wordSet, folded string) float64 {
	var sc float64
	if n := common(q, e.words); n > 0 {
		sc = float64(n) / float64(len(q)+len(e.words)-n)
	}
	if sc < x.s.floor && slices.ContainsFunc(e.phrases, func(p string) bool { return strings.Contains(folded, p) }) {
		sc = x.s.floor
	}
	return sc
}

// TopK returns at most k matches with a positive score, best first. A blank
// query matches nothing.
func (x *jaccardIndex) TopK(query string, k int) []Result {
	if len(x.entries) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = DefaultK
	}
	q, folded := words(query, x.s.stop), fold(query)

	type hit struct {
		Result
		size int
	}
	var hits []hit
	for _, e := range x.entries {
		if sc := x.score(e, q, folded); sc > 0 {
			hits = append(hits, hit{Result{e.id, sc}, e.textSize})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(a.size, b.size),
			cmp.Compare(a.ID, b.ID),
		)
	})

	var out []Result
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, h.Result)
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// fold case-folds s. A Caser keeps state, so each call gets its own.
func fold(s string) string { return cases.Fold().String(s) }

// words returns the folded words of s minus stop.
func words(s string, stop wordSet) wordSet {
	found := wordRE.FindAllString(fold(s), -1)
	if len(found) == 0 {
		return nil
	}
	set := make(wordSet, len(found))
	for _, w := range found {
		if _, skip := stop[w]; !skip {
			set[w] = struct{}{}
		}
	}
	return set
}

// common counts the words present in both sets.
func common(a, b wordSet) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
