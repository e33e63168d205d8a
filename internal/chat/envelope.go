package chat

import (
	"errors"
	"fmt"

	"github.com/ashureev/abroad-advisor/internal/annotate"
	"github.com/ashureev/abroad-advisor/internal/dispatch"
	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/transcript"
)

// buildEnvelope assembles the success result for a completed dispatch.
func buildEnvelope(intent domain.Intent, res transcript.Result, ann annotate.Annotation, t domain.Transcript) ResultEnvelope {
	env := ResultEnvelope{
		Status:  statusSuccess,
		Message: transcript.StripTerminator(ann.Message(res)),
		Meta: Meta{
			TeamUsed:         string(intent),
			InteractionCount: len(t),
			Strategy:         ann.Strategy,
			Source:           ann.Source,
			RAGSimilarity:    ann.Confidence,
			ReferenceLinks:   ann.ReferenceLinks,
		},
		Payload: ann.Payload,
	}
	if ann.ThinkingProcess != nil {
		thinking := transcript.StripTerminator(*ann.ThinkingProcess)
		env.Meta.ThinkingProcess = &thinking
	}
	if env.Message == "" {
		env.Message = transcript.FallbackText
	}
	return env
}

// fallbackEnvelope turns a dispatch failure into a degraded success result
// whose team ends in _FALLBACK.
func fallbackEnvelope(intent domain.Intent, err error) ResultEnvelope {
	return ResultEnvelope{
		Status:  statusSuccess,
		Message: fallbackMessage(intent, err),
		Meta: Meta{
			TeamUsed:         intent.Fallback(),
			InteractionCount: 0,
		},
	}
}

func fallbackMessage(intent domain.Intent, err error) string {
	label := intent.Label()

	var timeoutErr *dispatch.TimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("Sorry, the %s request took too long to complete. Please try again with a simpler question.", label)
	}

	category := dispatch.CategoryGeneric
	var backendErr *dispatch.BackendError
	if errors.As(err, &backendErr) {
		category = backendErr.Category
	}
	switch category {
	case dispatch.CategoryServiceDisruption:
		return fmt.Sprintf("Sorry, the %s service is experiencing a service disruption. Please try again in a few minutes.", label)
	case dispatch.CategoryCommunication:
		return fmt.Sprintf("Sorry, there was a communication issue while handling your %s. Please try again.", label)
	default:
		return fmt.Sprintf("Sorry, something went wrong while handling your %s. Please try again later.", label)
	}
}
