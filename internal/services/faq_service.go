package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/repo"
	"github.com/tbourn/go-leadbot-backend/internal/search"
)

// FAQMatch is one answer ranked for a question.
type FAQMatch struct {
	ID       string  `json:"id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// FAQService answers free-text questions from the FAQ table.
type FAQService struct {
	DB        *gorm.DB
	Threshold float64
	Stopwords []string
}

// Answer ranks active FAQ entries for query and returns up to limit matches
// scoring at least Threshold.
func (s *FAQService) Answer(ctx context.Context, query string, limit int) ([]FAQMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 3
	}
	entries, err := repo.ListActiveFAQ(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list faq", err)
	}

	docs := make([]search.Doc, 0, len(entries))
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		docs = append(docs, search.Doc{ID: e.ID, Text: e.Question, Keywords: splitKeywords(e.Keywords)})
		byID[e.ID] = i
	}
	var opts []search.Option
	if len(s.Stopwords) > 0 {
		opts = append(opts, search.WithStopwords(s.Stopwords))
	}
	idx := search.NewIndex(docs, opts...)

	var out []FAQMatch
	for _, r := range idx.TopK(query, limit) {
		if r.Score < s.Threshold {
			continue
		}
		e := entries[byID[r.ID]]
		out = append(out, FAQMatch{ID: e.ID, Question: e.Question, Answer: e.Answer, Score: r.Score})
	}
	return out, nil
}

func splitKeywords(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
