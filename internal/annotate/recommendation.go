package annotate

import (
	"strings"

	"github.com/ashureev/abroad-advisor/internal/links"
	"github.com/ashureev/abroad-advisor/internal/transcript"
)

// annotateRecommendation splits the recommendation pipeline's sectioned
// answer: thinking, analysis, links. Text without the thinking marker gets no
// annotation.
func annotateRecommendation(res transcript.Result) Annotation {
	_, afterThinking, found := strings.Cut(res.Text, MarkerThinking)
	if !found {
		return Annotation{}
	}

	thinking, analysisAndLinks, found := strings.Cut(afterThinking, MarkerFinalAnalysis)
	if !found {
		// Pipeline stopped mid-answer; surface what reasoning exists and
		// leave the message untouched.
		var a Annotation
		if s := transcript.StripTerminator(afterThinking); s != "" {
			a.ThinkingProcess = &s
		}
		return a
	}

	var a Annotation
	if s := strings.TrimSpace(thinking); s != "" {
		a.ThinkingProcess = &s
	}

	analysis, linkSection, hasLinks := strings.Cut(analysisAndLinks, MarkerReferenceLinks)
	if s := transcript.StripTerminator(analysis); s != "" {
		a.MessageOverride = &s
	}
	if hasLinks {
		a.ReferenceLinks = links.Extract(linkSection, recommendationLinkLimit)
		if len(a.ReferenceLinks) == 0 {
			a.ReferenceLinks = links.Fallback(analysis, fallbackLinkLimit)
		}
	}
	return a
}
