// Package intent loads and normalizes the clinic knowledge base.
//
// The knowledge base is a JSON file in one of three shapes:
//   - an object with an "intents" array already in the target schema
//   - a bare array of intent objects
//   - a category → list of {q, a} mapping
//
// All three are normalized into []Intent at load time; no other package
// branches on the source shape again.
package intent

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Intent is a normalized knowledge-base entry: example questions (patterns)
// grouped with canonical answers (responses) under a tag and category.
// Intents are immutable after normalization.
type Intent struct {
	Tag       string   `json:"tag"`
	Category  string   `json:"category"`
	Patterns  []string `json:"patterns"`
	Responses []string `json:"responses"`
}

// qaPair is a single question/answer entry in the category-mapping shape.
type qaPair struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// LoadFile reads and normalizes the knowledge base at path.
// A missing file is not an error to the system as a whole: the caller is
// expected to log the returned error and continue with an empty knowledge
// base (the service then starts in a "not ready" state).
func LoadFile(path string) ([]Intent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}
	return Parse(data)
}

// Parse normalizes raw JSON knowledge-base data into intents.
// Shape detection happens exactly once, here.
func Parse(data []byte) ([]Intent, error) {
	// Shape (b): bare array of intents.
	var list []Intent
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	// Shape (a): object with an "intents" array.
	var wrapper struct {
		Intents []Intent `json:"intents"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Intents != nil {
		return wrapper.Intents, nil
	}

	// Shape (c): category → list of {q, a} pairs.
	var qa map[string]json.RawMessage
	if err := json.Unmarshal(data, &qa); err != nil {
		return nil, fmt.Errorf("unrecognized knowledge base format: %w", err)
	}
	return fromQAPairs(qa), nil
}

// fromQAPairs converts the category-mapping shape into intents. A partially
// malformed file still yields its well-formed pairs: categories whose value
// is not a list are skipped, and non-object list entries are dropped while
// still consuming a tag index.
// Go maps have no iteration order, so categories are processed in sorted
// key order to keep normalization deterministic across restarts.
func fromQAPairs(qa map[string]json.RawMessage) []Intent {
	categories := make([]string, 0, len(qa))
	for category := range qa {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var intents []Intent
	for _, category := range categories {
		var items []json.RawMessage
		if err := json.Unmarshal(qa[category], &items); err != nil {
			continue
		}
		for i, item := range items {
			var pair qaPair
			// Non-object entries stay zero-valued and fall through below.
			_ = json.Unmarshal(item, &pair)

			// Pairs missing either side carry no retrievable knowledge.
			if pair.Question == "" || pair.Answer == "" {
				continue
			}
			intents = append(intents, Intent{
				Tag:       fmt.Sprintf("%s_%d", category, i),
				Category:  category,
				Patterns:  []string{pair.Question},
				Responses: []string{pair.Answer},
			})
		}
	}
	return intents
}

// keywordLexicon maps trigger substrings to keyword sets that widen recall
// for common clinic topics. A trigger matches anywhere in the lowercased
// patterns+responses text.
var keywordLexicon = map[string][]string{
	"covid":        {"coronavirus", "covid-19", "pandemic", "mask", "protocol", "safety"},
	"insurance":    {"coverage", "provider", "billing", "payment"},
	"hours":        {"schedule", "open", "closed", "time", "operation"},
	"location":     {"address", "where", "parking", "directions"},
	"cancellation": {"cancel", "reschedule", "policy"},
	"appointment":  {"visit", "booking", "schedule"},
}

// Keywords derives the auxiliary keyword set for an intent: the category name
// plus every keyword set whose trigger appears in the intent's text.
// The result is deduplicated and sorted so that document composition stays
// byte-deterministic (required for duplicate detection and idempotent
// rebuilds).
func Keywords(it Intent) []string {
	text := strings.ToLower(strings.Join(append(append([]string{}, it.Patterns...), it.Responses...), " "))

	set := map[string]struct{}{}
	if it.Category != "" {
		set[it.Category] = struct{}{}
	}
	for trigger, words := range keywordLexicon {
		if !strings.Contains(text, trigger) {
			continue
		}
		for _, w := range words {
			set[w] = struct{}{}
		}
	}

	keywords := make([]string, 0, len(set))
	for w := range set {
		keywords = append(keywords, w)
	}
	sort.Strings(keywords)
	return keywords
}
