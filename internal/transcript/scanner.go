// Package transcript recovers the single final answer from a backend
// transcript.
package transcript

import (
	"strings"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

// Terminator is the literal token backends emit to end a conversation.
// Backend prompts are tuned to emit it verbatim.
const Terminator = "TERMINATE"

// FallbackText is returned when no tier finds an answer.
const FallbackText = "I'm sorry, I wasn't able to produce an answer for that. Please try rephrasing your question."

// Via records which tier produced a Result.
type Via string

const (
	ViaFinalTurn       Via = "FINAL_TURN"
	ViaTerminatorSplit Via = "TERMINATOR_SPLIT"
	ViaLastNonEmpty    Via = "LAST_NONEMPTY"
	ViaNoneFound       Via = "NONE_FOUND"
)

// Result is the answer recovered from a transcript. Text is never empty.
type Result struct {
	Text string
	Via  Via
}

// Extract applies the tiers in order and returns the first hit:
// a final-text turn, a terminator-aware scan, the last non-empty turn, and
// finally FallbackText. It never mutates t.
func Extract(t domain.Transcript) Result {
	if text, ok := finalTurn(t); ok {
		return Result{Text: text, Via: ViaFinalTurn}
	}
	if text, ok := terminatorSplit(t); ok {
		return Result{Text: text, Via: ViaTerminatorSplit}
	}
	if text, ok := lastNonEmpty(t); ok {
		return Result{Text: text, Via: ViaLastNonEmpty}
	}
	return Result{Text: FallbackText, Via: ViaNoneFound}
}

func finalTurn(t domain.Transcript) (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Kind != domain.TurnFinal {
			continue
		}
		trimmed := strings.TrimSpace(t[i].Content)
		if trimmed != "" && trimmed != Terminator {
			return t[i].Content, true
		}
	}
	return "", false
}

// terminatorSplit stops at the newest turn that is not a bare terminator.
// A turn without the token is taken as-is; a turn with it contributes the
// text before the first occurrence, and an empty prefix moves the scan one
// turn back.
func terminatorSplit(t domain.Transcript) (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		content := t[i].Content
		if strings.TrimSpace(content) == Terminator {
			continue
		}
		if before, _, found := strings.Cut(content, Terminator); found {
			if head := strings.TrimSpace(before); head != "" {
				return head, true
			}
			continue
		}
		if strings.TrimSpace(content) == "" {
			return "", false
		}
		return content, true
	}
	return "", false
}

func lastNonEmpty(t domain.Transcript) (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(t[i].Content)
		if trimmed != "" && trimmed != Terminator {
			return t[i].Content, true
		}
	}
	return "", false
}

// StripTerminator removes every occurrence of the terminator token from s and
// trims the result. Apply it to any text shown to a user.
func StripTerminator(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, Terminator, ""))
}
