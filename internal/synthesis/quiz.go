package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultQuizQuestions is the question count when the caller does not ask
// for a specific number.
const DefaultQuizQuestions = 5

// maxQuizQuestions caps a single quiz request.
const maxQuizQuestions = 20

const quizSystemInstructions = `You generate multiple-choice quizzes from study material.
Respond with a single JSON object of the form
{"questions":[{"question":"...","options":["...","...","...","..."],"answer_index":0,"explanation":"..."}]}.
Every question must have exactly four options and answer_index must point at the correct one.
Base every question strictly on the provided material. Do not wrap the JSON in markdown fences or add any other text.`

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is a generated set of questions over one scope of stored content.
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// QuizBuilder generates quizzes from a source's stored chunks.
type QuizBuilder struct {
	store     vectorstore.Store
	generator Generator
	config    SynthesizerConfig
	logger    *zap.Logger
}

// NewQuizBuilder creates a QuizBuilder.
func NewQuizBuilder(store vectorstore.Store, generator Generator, cfg SynthesizerConfig, logger *zap.Logger) *QuizBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &QuizBuilder{
		store:     store,
		generator: generator,
		config:    cfg,
		logger:    logger,
	}
}

// Build generates a quiz of n questions from all chunks matching the filter.
//
// The model is asked for strict JSON and the reply is parsed with a strict
// decoder; anything that does not parse into a well-formed quiz surfaces as
// ErrMalformedOutput rather than a partial result.
func (b *QuizBuilder) Build(ctx context.Context, filter vectorstore.Filter, n int) (Quiz, error) {
	if n <= 0 {
		n = DefaultQuizQuestions
	}
	if n > maxQuizQuestions {
		n = maxQuizQuestions
	}

	chunks, err := b.store.FetchByMetadata(ctx, filter)
	if err != nil {
		return Quiz{}, fmt.Errorf("fetching source chunks: %w", err)
	}
	if len(chunks) == 0 {
		return Quiz{}, fmt.Errorf("no stored content matches owner %q source %q", filter.OwnerID, filter.SourceID)
	}

	material := boundedMaterial(chunks, b.config.MaxContextRunes)

	prompt := fmt.Sprintf("Generate %d questions from this material:\n\n%s", n, material)

	raw, err := b.generator.CompleteJSON(ctx, quizSystemInstructions, prompt)
	if err != nil {
		return Quiz{}, fmt.Errorf("completing quiz: %w", err)
	}

	quiz, err := decodeQuiz(raw)
	if err != nil {
		b.logger.Warn("model returned malformed quiz output", zap.Error(err))
		return Quiz{}, err
	}

	b.logger.Debug("built quiz",
		zap.String("owner_id", filter.OwnerID),
		zap.String("source_id", filter.SourceID),
		zap.Int("questions", len(quiz.Questions)),
	)

	return quiz, nil
}

// decodeQuiz parses the model reply strictly: it must be exactly one JSON
// object with a non-empty questions array, each question carrying four
// options and an in-range answer index. No regex extraction from surrounding
// prose; a model that disobeys the format produces ErrMalformedOutput.
func decodeQuiz(raw string) (Quiz, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var quiz Quiz
	if err := dec.Decode(&quiz); err != nil {
		return Quiz{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if dec.More() {
		return Quiz{}, fmt.Errorf("%w: trailing content after JSON object", ErrMalformedOutput)
	}
	if len(quiz.Questions) == 0 {
		return Quiz{}, fmt.Errorf("%w: no questions", ErrMalformedOutput)
	}
	for i, q := range quiz.Questions {
		if q.Question == "" {
			return Quiz{}, fmt.Errorf("%w: question %d has no text", ErrMalformedOutput, i)
		}
		if len(q.Options) != 4 {
			return Quiz{}, fmt.Errorf("%w: question %d has %d options, want 4", ErrMalformedOutput, i, len(q.Options))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return Quiz{}, fmt.Errorf("%w: question %d answer index %d out of range", ErrMalformedOutput, i, q.AnswerIndex)
		}
	}
	return quiz, nil
}

// boundedMaterial concatenates chunk texts up to the rune budget.
func boundedMaterial(chunks []vectorstore.Chunk, maxRunes int) string {
	var (
		sb    strings.Builder
		runes int
	)
	for i, c := range chunks {
		n := len([]rune(c.Text))
		if i > 0 && runes+n > maxRunes {
			break
		}
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
		runes += n
	}
	return sb.String()
}
