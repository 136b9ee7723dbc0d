// Package engine implements the retrieval-answer pipeline: small-talk
// interception, history contextualization, retrieval, grounded generation,
// source attribution, confidence tiering and follow-up suggestions.
//
// The engine never returns an error to its caller for a user question.
// Every failure mode maps to a degraded but well-formed Answer, so the HTTP
// surface stays simple and the user always gets a response.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/openclinic/cliniq/internal/log"
	"github.com/openclinic/cliniq/internal/vecstore"
)

// Retrieval breadth and attribution caps.
const (
	retrievalK    = 5
	maxSources    = 3
	maxHistory    = 3
	sourcePreview = 200
	maxFollowUps  = 2
)

// Confidence tiers for an answer, derived from the top source score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Canned answers for degraded states.
const (
	answerNotInitialized = "I'm not properly initialized yet. Please make sure the knowledge base is loaded."
	answerEmptyIndex     = "I don't have any information loaded yet. Please contact the clinic administrator."
	answerPipelineError  = "I encountered an error processing your question. Please try rephrasing or contact our clinic directly."
)

// Index is the retrieval surface the engine depends on.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]vecstore.Candidate, error)
	Count(ctx context.Context) int
}

// Generator produces a grounded answer from retrieved context and a question.
type Generator interface {
	Answer(ctx context.Context, contextText, question string) (string, error)
}

// Turn is one prior exchange in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source attributes part of an answer to a stored document.
type Source struct {
	Content        string  `json:"content"`
	Tag            string  `json:"tag"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Answer is the engine's complete response to a question.
type Answer struct {
	Answer              string   `json:"answer"`
	Sources             []Source `json:"sources"`
	Confidence          string   `json:"confidence"`
	FollowUpSuggestions []string `json:"follow_up_suggestions"`
}

// Stats reports the engine's operational state.
type Stats struct {
	TotalDocuments       int  `json:"total_documents"`
	TotalIntents         int  `json:"total_intents"`
	RetrieverInitialized bool `json:"retriever_initialized"`
	QAChainInitialized   bool `json:"qa_chain_initialized"`
}

// Engine answers clinic questions over an indexed knowledge base.
type Engine struct {
	index        Index
	gen          Generator
	totalIntents int
	logger       log.Logger
}

// New creates an engine. A nil index or generator is tolerated; the engine
// then answers every non-small-talk question with its not-initialized
// message instead of failing construction.
func New(index Index, gen Generator, totalIntents int, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		index:        index,
		gen:          gen,
		totalIntents: totalIntents,
		logger:       logger,
	}
}

// Ask runs the full answer pipeline for a question with optional
// conversation history.
func (e *Engine) Ask(ctx context.Context, question string, history []Turn) Answer {
	if response, ok := smallTalk(question); ok {
		return Answer{
			Answer:              response,
			Sources:             []Source{},
			Confidence:          ConfidenceHigh,
			FollowUpSuggestions: smallTalkFollowUps(),
		}
	}

	if e.index == nil || e.gen == nil {
		return Answer{
			Answer:              answerNotInitialized,
			Sources:             []Source{},
			Confidence:          ConfidenceLow,
			FollowUpSuggestions: []string{},
		}
	}

	if e.index.Count(ctx) == 0 {
		return Answer{
			Answer:              answerEmptyIndex,
			Sources:             []Source{},
			Confidence:          ConfidenceLow,
			FollowUpSuggestions: []string{},
		}
	}

	contextualized := contextualize(question, history)

	candidates, err := e.index.Search(ctx, contextualized, retrievalK)
	if err != nil {
		return e.failure("retrieval failed", err)
	}

	answerText, err := e.gen.Answer(ctx, formatDocs(candidates), contextualized)
	if err != nil {
		return e.failure("generation failed", err)
	}

	// Attribution scores come from a separate search on the bare question so
	// history padding never skews reported relevance.
	attribution, err := e.index.Search(ctx, question, retrievalK)
	if err != nil {
		return e.failure("attribution search failed", err)
	}

	sources := attributeSources(candidates, attribution)
	confidence := tierConfidence(sources)

	e.logger.Debug("question answered",
		"confidence", confidence,
		"sources", len(sources),
		"top_score", topScore(sources))

	return Answer{
		Answer:              answerText,
		Sources:             sources,
		Confidence:          confidence,
		FollowUpSuggestions: followUps(question, candidates),
	}
}

// Stats reports document and intent counts plus readiness flags.
func (e *Engine) Stats(ctx context.Context) Stats {
	var docs int
	if e.index != nil {
		docs = e.index.Count(ctx)
	}
	return Stats{
		TotalDocuments:       docs,
		TotalIntents:         e.totalIntents,
		RetrieverInitialized: e.index != nil,
		QAChainInitialized:   e.gen != nil,
	}
}

// DocumentCount exposes the index size for health reporting.
func (e *Engine) DocumentCount(ctx context.Context) int {
	if e.index == nil {
		return 0
	}
	return e.index.Count(ctx)
}

// Ready reports whether the full pipeline is wired.
func (e *Engine) Ready() bool {
	return e.index != nil && e.gen != nil
}

func (e *Engine) failure(msg string, err error) Answer {
	if errors.Is(err, vecstore.ErrNotInitialized) {
		return Answer{
			Answer:              answerNotInitialized,
			Sources:             []Source{},
			Confidence:          ConfidenceLow,
			FollowUpSuggestions: []string{},
		}
	}
	e.logger.Error(msg, "error", err)
	return Answer{
		Answer:              answerPipelineError,
		Sources:             []Source{},
		Confidence:          ConfidenceLow,
		FollowUpSuggestions: []string{},
	}
}

// contextualize prepends the last turns of history to the question so that
// retrieval and generation see the conversational frame.
func contextualize(question string, history []Turn) string {
	if len(history) == 0 {
		return question
	}
	recent := history
	if len(recent) > maxHistory {
		recent = recent[len(recent)-maxHistory:]
	}
	lines := make([]string, 0, len(recent))
	for _, turn := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}
	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question: %s",
		strings.Join(lines, "\n"), question)
}

// formatDocs joins retrieved contents into the generation context block.
func formatDocs(candidates []vecstore.Candidate) string {
	contents := make([]string, 0, len(candidates))
	for _, c := range candidates {
		contents = append(contents, c.Document.Content)
	}
	return strings.Join(contents, "\n\n")
}

// attributeSources builds the source list from the top retrieval candidates,
// scoring each by exact-content match against the attribution results.
// A candidate absent from the attribution set scores 0.
func attributeSources(candidates, attribution []vecstore.Candidate) []Source {
	top := candidates
	if len(top) > maxSources {
		top = top[:maxSources]
	}

	sources := make([]Source, 0, len(top))
	for _, c := range top {
		score := 0.0
		for _, a := range attribution {
			if a.Document.Content == c.Document.Content {
				score = distanceToSimilarity(a.Distance)
				break
			}
		}
		tag := c.Document.Metadata["tag"]
		if tag == "" {
			tag = "unknown"
		}
		sources = append(sources, Source{
			Content:        truncateContent(c.Document.Content),
			Tag:            tag,
			RelevanceScore: round3(score),
		})
	}
	return sources
}

// tierConfidence maps the top source score to a confidence tier.
// Both thresholds are strict.
func tierConfidence(sources []Source) string {
	if len(sources) == 0 {
		return ConfidenceLow
	}
	switch top := sources[0].RelevanceScore; {
	case top > 0.6:
		return ConfidenceHigh
	case top > 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// distanceToSimilarity converts cosine distance (0 = identical, 2 = opposite)
// to a 0-1 similarity where 1 is most similar. Out-of-range distances clamp.
func distanceToSimilarity(distance float64) float64 {
	similarity := 1.0 - math.Abs(distance)/2
	return math.Max(0.0, math.Min(1.0, similarity))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func truncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= sourcePreview {
		return content
	}
	return string(runes[:sourcePreview]) + "..."
}

func topScore(sources []Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	return sources[0].RelevanceScore
}
