package synthesis

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const summarySystemInstructions = `You summarize video transcripts.
Write a concise summary in plain prose: main topic first, then the key points in the order they appear.
Use only the transcript content.`

// maxSummaryInputRunes truncates very long transcripts before summarizing.
const maxSummaryInputRunes = 48000

// SummarizeTranscript produces a prose summary of a transcript.
func (s *Synthesizer) SummarizeTranscript(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("transcript is empty")
	}

	if utf8.RuneCountInString(transcript) > maxSummaryInputRunes {
		runes := []rune(transcript)
		transcript = string(runes[:maxSummaryInputRunes])
	}

	summary, err := s.generator.Complete(ctx, summarySystemInstructions, transcript)
	if err != nil {
		return "", fmt.Errorf("completing summary: %w", err)
	}

	return strings.TrimSpace(summary), nil
}
