package engine

import "strings"

// Small-talk interception: conversational openers are answered from canned
// text without touching the index or the model. Matching is case-insensitive
// on the trimmed question.

const (
	greetingAnswer = "Hello! I'm your clinic assistant. I can help you with information about our clinic hours, location, insurance, billing, appointment policies, and visit preparation. What would you like to know?"
	statusAnswer   = "I'm doing great, thank you for asking! I'm here to help answer your questions about our clinic. What information can I provide for you today?"
	thanksAnswer   = "You're very welcome! Feel free to ask if you have any other questions about our clinic services or policies."
	goodbyeAnswer  = "Goodbye! Have a wonderful day. Feel free to reach out anytime you have questions about our clinic."
)

var (
	greetingPhrases = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "greetings"}
	statusPhrases   = []string{"how are you", "how r you", "how do you do", "whats up", "what's up", "how are things"}
	thanksPhrases   = []string{"thank you", "thanks", "thx", "appreciate it", "thank u"}
	goodbyePhrases  = []string{"bye", "goodbye", "see you", "take care", "good bye", "later", "have a good day"}
)

// smallTalk reports whether the question is conversational and, if so, the
// canned answer for it. Categories are checked in a fixed order so a phrase
// matching several lists gets a stable response.
func smallTalk(question string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(question))

	if matchesPhrase(q, greetingPhrases, " ", ",") {
		return greetingAnswer, true
	}
	for _, phrase := range statusPhrases {
		if strings.Contains(q, phrase) {
			return statusAnswer, true
		}
	}
	if matchesPhrase(q, thanksPhrases, " ", "!") {
		return thanksAnswer, true
	}
	if matchesPhrase(q, goodbyePhrases, " ", "!") {
		return goodbyeAnswer, true
	}
	return "", false
}

// matchesPhrase matches an exact phrase or a phrase followed by one of the
// given separators. Prefix-only matching keeps "history" from matching "hi".
func matchesPhrase(q string, phrases []string, separators ...string) bool {
	for _, phrase := range phrases {
		if q == phrase {
			return true
		}
		for _, sep := range separators {
			if strings.HasPrefix(q, phrase+sep) {
				return true
			}
		}
	}
	return false
}

// smallTalkFollowUps returns the fixed suggestions attached to every
// small-talk answer.
func smallTalkFollowUps() []string {
	return []string{
		"What are your clinic hours?",
		"What insurance providers do you accept?",
	}
}
