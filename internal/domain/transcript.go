package domain

// TurnKind tags a transcript turn. Backends mark exactly the turns that carry
// their clean answer as TurnFinal; everything else (tool calls, inner
// monologue, routing chatter) is TurnOther.
type TurnKind int

const (
	TurnOther TurnKind = iota
	TurnFinal
)

// String returns the wire name of the kind.
func (k TurnKind) String() string {
	if k == TurnFinal {
		return "final"
	}
	return "other"
}

// ParseTurnKind maps a backend kind tag to a TurnKind. Unknown tags are
// treated as TurnOther.
func ParseTurnKind(s string) TurnKind {
	switch s {
	case "final", "text_final", "TextMessage":
		return TurnFinal
	default:
		return TurnOther
	}
}

// Turn is one element of a backend transcript.
type Turn struct {
	Kind    TurnKind
	Content string
}

// FinalText builds a final-text turn.
func FinalText(content string) Turn {
	return Turn{Kind: TurnFinal, Content: content}
}

// Other builds a non-final turn.
func Other(content string) Turn {
	return Turn{Kind: TurnOther, Content: content}
}

// Transcript is an ordered sequence of turns, oldest first.
type Transcript []Turn
