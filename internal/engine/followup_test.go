package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclinic/cliniq/internal/vecstore"
)

func TestFollowUps_NoCandidates(t *testing.T) {
	got := followUps("anything", nil)
	assert.Equal(t, []string{"What are your clinic hours?", "What insurance do you accept?"}, got)
}

func TestFollowUps_FromCategory(t *testing.T) {
	candidates := []vecstore.Candidate{
		doc("hours_0", "clinic_details", "c", 0.1),
	}

	got := followUps("when are you open", candidates)
	assert.Equal(t, []string{"What are your clinic hours?", "Where is the clinic located?"}, got)
}

func TestFollowUps_SkipsSuggestionInQuestion(t *testing.T) {
	candidates := []vecstore.Candidate{
		doc("hours_0", "clinic_details", "c", 0.1),
	}

	got := followUps("Tell me: what are your clinic hours?", candidates)
	assert.NotContains(t, got, "What are your clinic hours?")
	assert.Contains(t, got, "Where is the clinic located?")
}

func TestFollowUps_CappedAtTwo(t *testing.T) {
	candidates := []vecstore.Candidate{
		doc("hours_0", "clinic_details", "c", 0.1),
		doc("ins_0", "insurance_billing", "c", 0.2),
		doc("pol_0", "policies", "c", 0.3),
	}

	got := followUps("general question", candidates)
	assert.Len(t, got, 2)
	// Only the first two distinct categories contribute.
	assert.Equal(t, []string{"What are your clinic hours?", "Where is the clinic located?"}, got)
}

func TestFollowUps_UnknownCategory(t *testing.T) {
	candidates := []vecstore.Candidate{
		doc("x_0", "unmapped_category", "c", 0.1),
	}

	got := followUps("question", candidates)
	assert.Equal(t, []string{"What else can I help you with?"}, got)
}

func TestFollowUps_DeduplicatesAcrossCategories(t *testing.T) {
	// Same category appearing in several candidates contributes once.
	candidates := []vecstore.Candidate{
		doc("a_0", "policies", "c", 0.1),
		doc("a_1", "policies", "c", 0.2),
	}

	got := followUps("question", candidates)
	assert.Equal(t, []string{"What's your cancellation policy?", "What are your COVID-19 protocols?"}, got)
}
