package domain

import (
	"time"
)

// Profile stores what is known about an applicant. It is forwarded to the
// backends as context and is never written by the chat loop.
type Profile struct {
	UserID          string            `json:"user_id"`
	Name            string            `json:"name,omitempty"`
	GPA             *float64          `json:"gpa,omitempty"`
	GPAScale        *float64          `json:"gpa_scale,omitempty"`
	TestScores      map[string]string `json:"test_scores,omitempty"`
	TargetCountries []string          `json:"target_countries,omitempty"`
	TargetMajors    []string          `json:"target_majors,omitempty"`
	TargetDegree    string            `json:"target_degree,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsEmpty reports whether the profile carries no applicant data.
func (p *Profile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Name == "" && p.GPA == nil && len(p.TestScores) == 0 &&
		len(p.TargetCountries) == 0 && len(p.TargetMajors) == 0 &&
		p.TargetDegree == "" && p.Notes == ""
}

// AsMap flattens the profile into plain values for backend requests.
func (p *Profile) AsMap() map[string]any {
	out := map[string]any{}
	if p == nil {
		return out
	}
	if p.Name != "" {
		out["name"] = p.Name
	}
	if p.GPA != nil {
		out["gpa"] = *p.GPA
	}
	if p.GPAScale != nil {
		out["gpa_scale"] = *p.GPAScale
	}
	if len(p.TestScores) > 0 {
		scores := make(map[string]any, len(p.TestScores))
		for k, v := range p.TestScores {
			scores[k] = v
		}
		out["test_scores"] = scores
	}
	if len(p.TargetCountries) > 0 {
		out["target_countries"] = toAnySlice(p.TargetCountries)
	}
	if len(p.TargetMajors) > 0 {
		out["target_majors"] = toAnySlice(p.TargetMajors)
	}
	if p.TargetDegree != "" {
		out["target_degree"] = p.TargetDegree
	}
	if p.Notes != "" {
		out["notes"] = p.Notes
	}
	return out
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
