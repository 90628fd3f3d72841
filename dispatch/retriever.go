package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/types"
)

// MetaScope is the document metadata key matched against the retriever sub
// index.
const MetaScope = "scope"

var _ retriever.Retriever = (*KeywordRetriever)(nil)

// KeywordRetriever is an in-process retriever scoring documents by the share
// of query words they contain. It serves accounts without a vector store.
type KeywordRetriever struct {
	docs []*schema.Document
}

func NewKeywordRetriever(docs ...*schema.Document) *KeywordRetriever {
	return &KeywordRetriever{docs: docs}
}

// DocumentsFromOfferings turns the configured offerings into knowledge
// documents, one per offering.
func DocumentsFromOfferings(offerings []types.Offering) []*schema.Document {
	docs := make([]*schema.Document, 0, len(offerings))
	for i, o := range offerings {
		var buf strings.Builder
		buf.WriteString(o.Name)
		if o.Description != "" {
			buf.WriteString(": ")
			buf.WriteString(o.Description)
		}
		for _, b := range o.Benefits {
			buf.WriteString("\n- ")
			buf.WriteString(b)
		}
		if o.PriceInfo != "" || o.Price > 0 {
			buf.WriteString(fmt.Sprintf("\nPrice: %.2f %s", o.Price, o.PriceInfo))
		}
		if len(o.Keywords) > 0 {
			buf.WriteString("\nKeywords: ")
			buf.WriteString(strings.Join(o.Keywords, ", "))
		}
		docs = append(docs, &schema.Document{
			ID:       fmt.Sprintf("offering-%d", i),
			Content:  strings.TrimSpace(buf.String()),
			MetaData: map[string]any{"offering": o.Name},
		})
	}
	return docs
}

func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	options := retriever.GetCommonOptions(&retriever.Options{}, opts...)
	queryWords := queryTerms(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	var hits []*schema.Document
	for _, doc := range r.docs {
		if options.SubIndex != nil && *options.SubIndex != "" {
			if scope, _ := doc.MetaData[MetaScope].(string); scope != "" && scope != *options.SubIndex {
				continue
			}
		}
		docWords := queryTerms(doc.Content)
		matched := 0
		for w := range queryWords {
			if docWords[w] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(queryWords))
		if options.ScoreThreshold != nil && score < *options.ScoreThreshold {
			continue
		}
		hit := &schema.Document{ID: doc.ID, Content: doc.Content, MetaData: doc.MetaData}
		hits = append(hits, hit.WithScore(score))
	}
	slices.SortStableFunc(hits, func(a, b *schema.Document) int {
		switch {
		case a.Score() > b.Score():
			return -1
		case a.Score() < b.Score():
			return 1
		default:
			return 0
		}
	})
	if options.TopK != nil && *options.TopK > 0 && len(hits) > *options.TopK {
		hits = hits[:*options.TopK]
	}
	return hits, nil
}

// Framing words the dispatcher puts around queries, plus common fillers.
var retrievalStopwords = map[string]bool{
	"how": true, "the": true, "address": true, "objection": true, "and": true, "for": true,
	"what": true, "with": true, "para": true, "com": true, "que": true, "uma": true,
	"como": true, "qual": true, "quais": true, "por": true, "vocês": true, "voces": true,
	"tem": true, "das": true, "dos": true, "nas": true, "nos": true, "muito": true,
}

func queryTerms(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 3 && !retrievalStopwords[w] {
			out[w] = true
		}
	}
	return out
}
