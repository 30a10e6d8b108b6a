// Package grounding scores whether a composed answer is actually supported
// by the evidence that produced it. Each detected issue costs a fixed
// confidence penalty; an answer passes only with zero issues.
package grounding

import (
	"strings"

	"github.com/calai/calai-go/internal/rag"
)

// issuePenalty is subtracted from full confidence per detected issue.
const issuePenalty = 0.2

// calendarPhrases are literal phrases whose presence in an answer claims
// calendar grounding. Claiming them without having touched the calendar is a
// hallucinated citation.
var calendarPhrases = []string{"calendar data:", "google calendar"}

// Verdict is the grounding assessment of a single answer.
type Verdict struct {
	// Confidence is in [0,1]; 1.0 means no issues were found.
	Confidence float64 `json:"confidence"`
	// Issues lists the detected grounding problems, empty on pass.
	Issues []string `json:"issues,omitempty"`
	// Pass is true only when zero issues were detected.
	Pass bool `json:"pass"`
	// Explanation joins the issues, or states the answer is grounded.
	Explanation string `json:"explanation"`
}

// Evaluate checks answer against the retrieved evidence. toolUsed reports
// whether a calendar tool actually contributed to the answer.
func Evaluate(answer string, docs []rag.Hit, toolUsed bool) Verdict {
	var issues []string

	if len(docs) == 0 && !toolUsed {
		issues = append(issues, "no retrieved evidence and no tool was invoked")
	}

	lower := strings.ToLower(answer)
	if !toolUsed {
		for _, phrase := range calendarPhrases {
			if strings.Contains(lower, phrase) {
				issues = append(issues, "calendar data referenced without tool usage")
				break
			}
		}
	}

	confidence := 1.0 - issuePenalty*float64(len(issues))
	if confidence < 0 {
		confidence = 0
	}

	explanation := "answer is properly grounded"
	if len(issues) > 0 {
		explanation = strings.Join(issues, " | ")
	}
	return Verdict{
		Confidence:  confidence,
		Issues:      issues,
		Pass:        len(issues) == 0,
		Explanation: explanation,
	}
}
