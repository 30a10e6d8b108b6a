package grounding

import (
	"testing"

	"github.com/calai/calai-go/internal/rag"
)

// hit builds a minimal evidence hit for tests.
func hit(text string) rag.Hit {
	return rag.Hit{SourceID: "doc-1", Text: text, Score: 0.9, Origin: rag.OriginKB}
}

// TestEvaluate_Grounded verifies the clean case: evidence present, no
// calendar claims, full confidence.
func TestEvaluate_Grounded(t *testing.T) {
	t.Parallel()

	v := Evaluate("The leave policy allows 20 days.", []rag.Hit{hit("leave policy: 20 days")}, false)

	if !v.Pass {
		t.Errorf("expected pass, got issues: %v", v.Issues)
	}
	if v.Confidence != 1.0 {
		t.Errorf("confidence: got %v, want 1.0", v.Confidence)
	}
	if v.Explanation != "answer is properly grounded" {
		t.Errorf("explanation: got %q", v.Explanation)
	}
}

// TestEvaluate_NoEvidence verifies one issue costs 0.2 confidence and fails.
func TestEvaluate_NoEvidence(t *testing.T) {
	t.Parallel()

	v := Evaluate("Here is an answer from nowhere.", nil, false)

	if v.Pass {
		t.Error("expected fail with no evidence and no tool")
	}
	if len(v.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", v.Issues)
	}
	if v.Confidence != 0.8 {
		t.Errorf("confidence: got %v, want 0.8", v.Confidence)
	}
}

// TestEvaluate_ToolCoversNoEvidence verifies tool usage alone counts as
// evidence.
func TestEvaluate_ToolCoversNoEvidence(t *testing.T) {
	t.Parallel()

	v := Evaluate("You have no events tomorrow.", nil, true)

	if !v.Pass {
		t.Errorf("expected pass when a tool was used, got issues: %v", v.Issues)
	}
	if v.Confidence != 1.0 {
		t.Errorf("confidence: got %v, want 1.0", v.Confidence)
	}
}

// TestEvaluate_HallucinatedCalendarClaim verifies that referencing calendar
// data without tool usage is flagged, and stacks with the no-evidence issue.
func TestEvaluate_HallucinatedCalendarClaim(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		answer string
		docs   []rag.Hit
		wantN  int
		wantC  float64
	}{
		{
			name:   "claim with kb evidence",
			answer: "According to your Google Calendar you are free.",
			docs:   []rag.Hit{hit("unrelated")},
			wantN:  1,
			wantC:  0.8,
		},
		{
			name:   "claim with no evidence at all",
			answer: "Calendar data: you have three meetings.",
			docs:   nil,
			wantN:  2,
			wantC:  0.6,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := Evaluate(tc.answer, tc.docs, false)
			if v.Pass {
				t.Error("expected fail")
			}
			if len(v.Issues) != tc.wantN {
				t.Errorf("issues: got %v, want %d", v.Issues, tc.wantN)
			}
			if v.Confidence < tc.wantC-1e-9 || v.Confidence > tc.wantC+1e-9 {
				t.Errorf("confidence: got %v, want %v", v.Confidence, tc.wantC)
			}
		})
	}
}

// TestEvaluate_CalendarPhraseWithTool verifies calendar phrasing is fine
// when the calendar actually contributed.
func TestEvaluate_CalendarPhraseWithTool(t *testing.T) {
	t.Parallel()

	v := Evaluate("Calendar data: two events tomorrow.", []rag.Hit{hit("x")}, true)
	if !v.Pass {
		t.Errorf("expected pass, got issues: %v", v.Issues)
	}
}
