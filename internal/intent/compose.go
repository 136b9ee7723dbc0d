package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceLabel marks every composed document's origin in metadata.
const SourceLabel = "intents.json"

// Document is the indexable unit stored in the vector index, derived 1:1
// from an Intent. Content is never mutated in place; updates are
// delete-and-reinsert at the index level.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Compose renders an intent into a single indexable document.
//
// The content is a fixed four-section template; patterns and responses are
// joined with " | " and the keyword set from Keywords is space-joined.
// Composition is deterministic: the same intent always yields byte-identical
// content.
func Compose(it Intent) Document {
	patternText := strings.Join(it.Patterns, " | ")
	responseText := strings.Join(it.Responses, " | ")
	keywordText := strings.Join(Keywords(it), " ")

	content := fmt.Sprintf("Category: %s\nQuestions: %s\nAnswer: %s\nKeywords: %s",
		it.Category, patternText, responseText, keywordText)

	// Marshal of []string cannot fail; keep the serialized originals so the
	// intent can be reconstructed from stored metadata alone.
	patternsJSON, _ := json.Marshal(it.Patterns)
	responsesJSON, _ := json.Marshal(it.Responses)

	return Document{
		ID:      it.Tag,
		Content: content,
		Metadata: map[string]string{
			"tag":       it.Tag,
			"category":  it.Category,
			"patterns":  string(patternsJSON),
			"responses": string(responsesJSON),
			"source":    SourceLabel,
		},
	}
}

// ComposeAll renders every intent in order.
func ComposeAll(intents []Intent) []Document {
	docs := make([]Document, 0, len(intents))
	for _, it := range intents {
		docs = append(docs, Compose(it))
	}
	return docs
}
