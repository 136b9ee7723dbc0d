package engine

import (
	"strings"

	"github.com/openclinic/cliniq/internal/vecstore"
)

// categorySuggestions maps knowledge categories to candidate follow-up
// questions, offered after an answer grounded in that category.
var categorySuggestions = map[string][]string{
	"clinic_details": {
		"What are your clinic hours?",
		"Where is the clinic located?",
		"Is parking available?",
	},
	"insurance_billing": {
		"What insurance providers do you accept?",
		"What payment methods can I use?",
		"Can you explain your billing policies?",
	},
	"visit_preparation": {
		"What documents do I need for my first visit?",
		"What should I bring to my appointment?",
	},
	"policies": {
		"What's your cancellation policy?",
		"What are your COVID-19 protocols?",
		"What happens if I'm late?",
	},
}

// followUps picks up to two follow-up questions from the categories of the
// retrieved documents. Suggestions already contained in the user's question
// are skipped; duplicates are removed preserving first appearance.
func followUps(question string, candidates []vecstore.Candidate) []string {
	if len(candidates) == 0 {
		return []string{"What are your clinic hours?", "What insurance do you accept?"}
	}

	// Distinct categories in retrieval order.
	var categories []string
	seenCategory := map[string]bool{}
	for _, c := range candidates {
		category := c.Document.Metadata["category"]
		if category == "" || seenCategory[category] {
			continue
		}
		seenCategory[category] = true
		categories = append(categories, category)
	}
	if len(categories) > 2 {
		categories = categories[:2]
	}

	questionLower := strings.ToLower(question)
	var followUps []string
	seen := map[string]bool{}
	for _, category := range categories {
		suggestions := categorySuggestions[category]
		if len(suggestions) > 2 {
			suggestions = suggestions[:2]
		}
		for _, suggestion := range suggestions {
			if strings.Contains(questionLower, strings.ToLower(suggestion)) {
				continue
			}
			if seen[suggestion] {
				continue
			}
			seen[suggestion] = true
			followUps = append(followUps, suggestion)
		}
	}

	if len(followUps) == 0 {
		return []string{"What else can I help you with?"}
	}
	if len(followUps) > maxFollowUps {
		followUps = followUps[:maxFollowUps]
	}
	return followUps
}
