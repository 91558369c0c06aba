package synthesis

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"go.uber.org/zap"
)

// FallbackAnswer is the fixed response returned when retrieval finds no
// relevant chunks. The generative model is never invoked for it.
const FallbackAnswer = "I could not find any relevant information in your sources to answer that question."

// defaultSystemInstructions ground the model in the retrieved context.
const defaultSystemInstructions = `You are a helpful assistant answering questions about the user's own documents.
Answer using only the provided context. If the context does not contain the answer, say so plainly instead of guessing.`

// DefaultMaxContextRunes bounds the concatenated context block handed to the
// model.
const DefaultMaxContextRunes = 12000

// Answer is a synthesized response to a query.
type Answer struct {
	// Text is the answer, or FallbackAnswer when nothing was retrieved.
	Text string

	// UsedChunkIDs lists the chunks whose text was actually included in the
	// prompt context, in rank order.
	UsedChunkIDs []string

	// Fallback is true when no chunks matched and Text is the fixed
	// fallback.
	Fallback bool
}

// SynthesizerConfig holds configuration for the Synthesizer.
type SynthesizerConfig struct {
	// SystemInstructions override the default grounding instructions.
	SystemInstructions string

	// MaxContextRunes bounds the context block. Default:
	// DefaultMaxContextRunes.
	MaxContextRunes int
}

// ApplyDefaults sets default values for unset fields.
func (c *SynthesizerConfig) ApplyDefaults() {
	if c.SystemInstructions == "" {
		c.SystemInstructions = defaultSystemInstructions
	}
	if c.MaxContextRunes == 0 {
		c.MaxContextRunes = DefaultMaxContextRunes
	}
}

// Synthesizer builds grounded answers from retrieved chunks.
type Synthesizer struct {
	generator Generator
	config    SynthesizerConfig
	logger    *zap.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(generator Generator, cfg SynthesizerConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Synthesizer{
		generator: generator,
		config:    cfg,
		logger:    logger,
	}
}

// Synthesize answers the question from the retrieved chunks.
//
// An empty result set short-circuits to the fixed fallback answer without
// calling the generative model. Otherwise chunk texts are concatenated in
// rank order into a rune-bounded context block; chunks that do not fit are
// dropped and not reported as used.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, results []vectorstore.ScoredChunk) (Answer, error) {
	if len(results) == 0 {
		s.logger.Debug("no chunks retrieved, returning fallback answer")
		return Answer{Text: FallbackAnswer, Fallback: true}, nil
	}

	contextBlock, usedIDs := s.buildContext(results)

	prompt := fmt.Sprintf("Context:\n%s\nQuestion: %s", contextBlock, question)

	text, err := s.generator.Complete(ctx, s.config.SystemInstructions, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("completing answer: %w", err)
	}

	s.logger.Debug("synthesized answer",
		zap.Int("chunks_used", len(usedIDs)),
		zap.Int("context_runes", utf8.RuneCountInString(contextBlock)),
	)

	return Answer{Text: strings.TrimSpace(text), UsedChunkIDs: usedIDs}, nil
}

// buildContext concatenates chunk texts in rank order until the rune budget
// is exhausted, returning the block and the IDs of the chunks that fit. The
// first chunk is always included even if it alone exceeds the budget.
func (s *Synthesizer) buildContext(results []vectorstore.ScoredChunk) (string, []string) {
	var (
		sb      strings.Builder
		usedIDs []string
		runes   int
	)

	for i, r := range results {
		chunkRunes := utf8.RuneCountInString(r.Text)
		if i > 0 && runes+chunkRunes > s.config.MaxContextRunes {
			break
		}
		sb.WriteString(r.Text)
		sb.WriteString("\n---\n")
		runes += chunkRunes
		usedIDs = append(usedIDs, r.ID)
	}

	return sb.String(), usedIDs
}
