package analysis

import (
	"encoding/json"
	"fmt"
)

// Result is the fixed-shape outcome of one analysis pass. Every pass —
// incremental, final, or failed — produces this shape, so consumers never
// need to branch on missing fields.
type Result struct {
	// TechnicalAnalysis is a one-to-two sentence summary of what is being
	// discussed technically.
	TechnicalAnalysis string `json:"technical_analysis"`

	// PotentialIssues lists newly spotted problems or risks.
	PotentialIssues []string `json:"potential_issues"`

	// Recommendations lists actionable suggestions.
	Recommendations []string `json:"recommendations"`

	// ClarifyingQuestions lists questions the model wants answered to give
	// better advice.
	ClarifyingQuestions []string `json:"clarifying_questions"`

	// ActionItems lists tasks, with owners when mentioned.
	ActionItems []string `json:"action_items"`
}

// defaultAnalysisText fills a missing technical_analysis key on incremental
// passes. Final passes use defaultFinalText instead.
const (
	defaultAnalysisText = "No technical discussion detected yet"
	defaultFinalText    = "No technical analysis available"
)

// parseResult decodes the model's JSON reply and fills any missing keys so
// the result always carries the full shape. missingText fills a missing
// technical_analysis field.
func parseResult(content, missingText string) (*Result, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("analysis: decode model reply: %w", err)
	}

	r := &Result{}
	if v, ok := raw["technical_analysis"]; ok {
		_ = json.Unmarshal(v, &r.TechnicalAnalysis)
	}
	if r.TechnicalAnalysis == "" {
		r.TechnicalAnalysis = missingText
	}

	decodeList := func(key string) []string {
		var out []string
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &out)
		}
		if out == nil {
			out = []string{}
		}
		return out
	}
	r.PotentialIssues = decodeList("potential_issues")
	r.Recommendations = decodeList("recommendations")
	r.ClarifyingQuestions = decodeList("clarifying_questions")
	r.ActionItems = decodeList("action_items")

	return r, nil
}

// errorResult shapes a failure as a regular Result so downstream consumers
// keep working when the model or the network does not.
func errorResult(msg string) *Result {
	return &Result{
		TechnicalAnalysis:   "Error: " + msg,
		PotentialIssues:     []string{},
		Recommendations:     []string{},
		ClarifyingQuestions: []string{},
		ActionItems:         []string{},
	}
}

// IsError reports whether the result was shaped from a failure rather than a
// successful model reply.
func (r *Result) IsError() bool {
	return len(r.TechnicalAnalysis) >= 7 && r.TechnicalAnalysis[:7] == "Error: "
}
