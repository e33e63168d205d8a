package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		want    domain.Intent
	}{
		{"recommendation english", "Can you recommend some universities for CS?", domain.IntentSchoolRecommendation},
		{"recommendation chinese", "请帮我推荐几所保底学校", domain.IntentSchoolRecommendation},
		{"recommendation case insensitive", "Please RECOMMEND a school", domain.IntentSchoolRecommendation},
		{"profile english", "My GPA is 3.7 out of 4.0", domain.IntentStudentInfo},
		{"profile chinese", "我的成绩是3.8", domain.IntentStudentInfo},
		{"profile edit", "update profile with my new toefl", domain.IntentStudentInfo},
		{"general", "How long does a US student visa take?", domain.IntentGeneralQA},
		{"empty", "", domain.IntentGeneralQA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.message))
		})
	}
}

func TestClassifyTieFavoursStudentInfo(t *testing.T) {
	t.Parallel()

	msg := "my gpa and my major, any university ranking?"
	school, info := Score(msg)
	assert.Equal(t, school, info)
	assert.Positive(t, info)
	assert.Equal(t, domain.IntentStudentInfo, Classify(msg))
}

func TestClassifyMoreSchoolThanInfo(t *testing.T) {
	t.Parallel()

	msg := "my gpa is 3.5, please recommend a safety school and a reach school"
	school, info := Score(msg)
	assert.Greater(t, school, info)
	assert.Equal(t, domain.IntentSchoolRecommendation, Classify(msg))
}

func TestScoreCountsDistinctKeywords(t *testing.T) {
	t.Parallel()

	school, info := Score("recommend recommend recommend")
	// "recommend" matches once per list entry, not once per occurrence.
	assert.Equal(t, 1, school)
	assert.Zero(t, info)
}
