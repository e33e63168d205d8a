package links

import "strings"

type topicLinks struct {
	topic string
	urls  []string
}

// topics is searched in order; the first topic found in the text wins, so
// specific schools come before generic exam and visa topics.
var topics = []topicLinks{
	{"harvard", []string{"https://www.harvard.edu/admissions-aid", "https://college.harvard.edu/admissions"}},
	{"stanford", []string{"https://admission.stanford.edu", "https://gradadmissions.stanford.edu"}},
	{"mit", []string{"https://mitadmissions.org", "https://oge.mit.edu/graduate-admissions"}},
	{"oxford", []string{"https://www.ox.ac.uk/admissions", "https://www.ox.ac.uk/admissions/graduate"}},
	{"cambridge", []string{"https://www.undergraduate.study.cam.ac.uk", "https://www.postgraduate.study.cam.ac.uk"}},
	{"toronto", []string{"https://future.utoronto.ca", "https://www.sgs.utoronto.ca"}},
	{"melbourne", []string{"https://study.unimelb.edu.au", "https://study.unimelb.edu.au/how-to-apply"}},
	{"toefl", []string{"https://www.ets.org/toefl", "https://www.ets.org/toefl/test-takers/ibt/scores"}},
	{"ielts", []string{"https://www.ielts.org", "https://www.ielts.org/for-test-takers/test-results"}},
	{"gre", []string{"https://www.ets.org/gre", "https://www.ets.org/gre/test-takers/general-test/scores"}},
	{"gmat", []string{"https://www.mba.com/exams/gmat-exam", "https://www.mba.com/exams/gmat-exam/scores"}},
	{"gpa", []string{"https://www.wes.org/evaluations", "https://www.scholaro.com/gpa-calculator"}},
	{"visa", []string{"https://travel.state.gov/content/travel/en/us-visas/study.html", "https://www.gov.uk/student-visa"}},
	{"scholarship", []string{"https://www.fulbrightprogram.org", "https://www.chevening.org/scholarships"}},
	{"ranking", []string{"https://www.topuniversities.com/world-university-rankings", "https://www.timeshighereducation.com/world-university-rankings"}},
}

var defaultLinks = []string{
	"https://www.topuniversities.com/world-university-rankings",
	"https://www.commonapp.org",
	"https://educationusa.state.gov",
}

// Fallback returns reference links for the first topic mentioned in
// topicText, or a generic list when no topic matches. Callers use it only when
// Extract found nothing.
func Fallback(topicText string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	lower := strings.ToLower(topicText)
	for _, t := range topics {
		if strings.Contains(lower, t.topic) {
			return capped(t.urls, limit)
		}
	}
	return capped(defaultLinks, limit)
}

func capped(in []string, limit int) []string {
	n := min(len(in), limit)
	out := make([]string, n)
	copy(out, in[:n])
	return out
}
