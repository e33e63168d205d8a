package annotate

import (
	"strings"
	"unicode/utf8"

	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/transcript"
)

const (
	heuristicMinLength = 100
	heuristicHeadRunes = 200
)

// leadIns suggest the opening of a profile answer is the model reasoning
// about the applicant rather than the summary itself.
var leadIns = []string{
	"based on",
	"looking at",
	"i can see",
	"analyzing",
	"from your",
	"let me",
}

// annotateStudentInfo tries, in order: an embedded JSON object, the
// thinking/profile-summary section markers, and a lead-in heuristic on the
// opening of the text.
func annotateStudentInfo(res transcript.Result, t domain.Transcript) Annotation {
	if a, ok := studentJSON(res, t); ok {
		return a
	}
	if a, ok := studentSections(res.Text); ok {
		return a
	}
	return studentHeuristic(res.Text)
}

func studentJSON(res transcript.Result, t domain.Transcript) (Annotation, bool) {
	keys := []string{"thinking_process", "profile_summary"}
	obj, ok := embeddedObject(res.Text)
	if !ok || !hasAny(obj, keys...) {
		obj, ok = firstEmbedded(t, keys...)
	}
	if !ok {
		return Annotation{}, false
	}

	a := Annotation{
		ThinkingProcess: text(obj, "thinking_process"),
		Payload:         objectMap(obj, "profile"),
	}
	if s := text(obj, "profile_summary"); s != nil {
		stripped := transcript.StripTerminator(*s)
		if stripped != "" {
			a.MessageOverride = &stripped
		}
	}
	return a, true
}

func studentSections(text string) (Annotation, bool) {
	_, rest, found := strings.Cut(text, MarkerThinking)
	if !found {
		return Annotation{}, false
	}

	var a Annotation
	thinking, summary, hasSummary := strings.Cut(rest, MarkerProfileSummary)
	if !hasSummary {
		if s := transcript.StripTerminator(rest); s != "" {
			a.ThinkingProcess = &s
		}
		return a, true
	}

	if s := strings.TrimSpace(thinking); s != "" {
		a.ThinkingProcess = &s
	}
	if s := transcript.StripTerminator(summary); s != "" {
		a.MessageOverride = &s
	}
	return a, true
}

func studentHeuristic(text string) Annotation {
	if utf8.RuneCountInString(text) <= heuristicMinLength {
		return Annotation{}
	}
	head := text
	if utf8.RuneCountInString(head) > heuristicHeadRunes {
		head = string([]rune(head)[:heuristicHeadRunes])
	}
	lower := strings.ToLower(head)
	for _, phrase := range leadIns {
		if strings.Contains(lower, phrase) {
			return Annotation{ThinkingProcess: strPtr(strings.TrimSpace(head))}
		}
	}
	return Annotation{}
}
