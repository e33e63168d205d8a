package annotate

import (
	"github.com/tidwall/gjson"

	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/transcript"
)

const generalLinkLimit = 10

// annotateGeneralQA looks for the QA backend's structured payload: a turn
// that is entirely a JSON object with thinking_process and answer. Without
// one it tries the extracted text itself, then any turn with an embedded
// object carrying thinking_process.
func annotateGeneralQA(res transcript.Result, t domain.Transcript) Annotation {
	obj, ok := structuredPayload(t)
	if !ok {
		obj, ok = wholeObject(res.Text, "thinking_process", "answer")
	}
	if !ok {
		obj, ok = firstEmbedded(t, "thinking_process")
	}
	if !ok {
		return Annotation{}
	}

	a := Annotation{
		ThinkingProcess: text(obj, "thinking_process"),
		ReferenceLinks:  linkList(obj, "reference_links", generalLinkLimit),
		Strategy:        text(obj, "strategy"),
		Source:          text(obj, "source"),
		Confidence:      number(obj, "confidence"),
	}

	// A clean final-text answer is kept as-is; otherwise the payload's own
	// summary replaces whatever raw turn the scanner fell back to.
	if res.Via != transcript.ViaFinalTurn {
		for _, key := range []string{"text_summary", "summary", "answer"} {
			if s := text(obj, key); s != nil {
				a.MessageOverride = s
				break
			}
		}
	}
	return a
}

// structuredPayload returns the newest turn that is a whole JSON object with
// thinking_process and answer.
func structuredPayload(t domain.Transcript) (gjson.Result, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if obj, ok := wholeObject(t[i].Content, "thinking_process", "answer"); ok {
			return obj, true
		}
	}
	return gjson.Result{}, false
}
