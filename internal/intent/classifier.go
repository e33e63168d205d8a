// Package intent routes a user message to one of the backend teams by
// keyword scoring.
package intent

import (
	"strings"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

// schoolKeywords mark recommendation requests. Entries are lower-case and
// matched as substrings of the lower-cased message.
var schoolKeywords = []string{
	"recommend",
	"recommendation",
	"suggest school",
	"suggest university",
	"which school",
	"which university",
	"what school",
	"what university",
	"school list",
	"university ranking",
	"ranking",
	"reach school",
	"safety school",
	"match school",
	"dream school",
	"best program",
	"chances of admission",
	"admission chance",
	"推荐",
	"选校",
	"申请哪些",
	"哪些学校",
	"排名",
	"冲刺学校",
	"保底学校",
	"匹配学校",
	"录取概率",
}

// infoKeywords mark profile statements or profile edits.
var infoKeywords = []string{
	"my gpa",
	"my toefl",
	"my ielts",
	"my gre",
	"my gmat",
	"my score",
	"my major",
	"my background",
	"my profile",
	"my experience",
	"my internship",
	"my research",
	"i graduated",
	"i studied",
	"update profile",
	"update my",
	"change my",
	"my transcript",
	"我的成绩",
	"我的gpa",
	"我的背景",
	"我的专业",
	"我的经历",
	"更新资料",
	"修改资料",
	"个人信息",
}

// Score counts how many keywords of each list occur in message.
func Score(message string) (school, info int) {
	lower := strings.ToLower(message)
	for _, kw := range schoolKeywords {
		if strings.Contains(lower, kw) {
			school++
		}
	}
	for _, kw := range infoKeywords {
		if strings.Contains(lower, kw) {
			info++
		}
	}
	return school, info
}

// Classify returns the intent for message.
//
// A tie with both scores positive resolves to STUDENT_INFO. Existing clients
// depend on that ordering.
func Classify(message string) domain.Intent {
	school, info := Score(message)
	if school > info && school > 0 {
		return domain.IntentSchoolRecommendation
	}
	if info > 0 {
		return domain.IntentStudentInfo
	}
	return domain.IntentGeneralQA
}
