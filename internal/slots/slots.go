// Package slots extracts the structured fields of an event-creation request
// (title, date, start/end time, location) from free text, and detects when a
// creation-style query is too vague to act on. Extraction is pure regex and
// string work so results are deterministic and instant.
package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Required creation fields. A SlotSet is complete for creation only when all
// three are present.
const (
	FieldTitle     = "title"
	FieldDate      = "date"
	FieldStartTime = "startTime"
)

// SlotSet holds the extracted creation fields. Empty string means the field
// was not found. Date is YYYY-MM-DD; times are 24-hour HH:MM.
type SlotSet struct {
	Title     string `json:"title,omitempty"`
	Date      string `json:"date,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Extraction is the result of slot extraction. When Missing is non-empty the
// request needs clarification; the partial Slots are kept so the caller can
// ask for exactly the absent fields.
type Extraction struct {
	Slots   SlotSet  `json:"slots"`
	Missing []string `json:"missing,omitempty"`
}

// Complete reports whether every creation-required field was found.
func (e Extraction) Complete() bool { return len(e.Missing) == 0 }

// Extractor resolves relative dates ("today", "tomorrow") against an
// injectable clock and timezone.
type Extractor struct {
	now func() time.Time
	tz  *time.Location
}

// NewExtractor returns an Extractor using the given timezone. A nil tz
// falls back to UTC.
func NewExtractor(tz *time.Location) *Extractor {
	if tz == nil {
		tz = time.UTC
	}
	return &Extractor{now: time.Now, tz: tz}
}

var (
	// clockRe matches clock-like tokens: "5pm", "17:30", "9:00am". A bare
	// number without colon or meridiem is not a time.
	clockRe = regexp.MustCompile(`(?i)\b([0-9]{1,2})(?::([0-9]{2}))?\s*(am|pm)?\b`)

	// explicitDateRe matches YYYY-MM-DD and YYYY/MM/DD.
	explicitDateRe = regexp.MustCompile(`\b([0-9]{4})[-/]([0-9]{2})[-/]([0-9]{2})\b`)

	// titleMarkerRe captures a title introduced explicitly.
	titleMarkerRe = regexp.MustCompile(`(?i)\b(?:named|titled|called)\s+(.+)$`)

	// locationMarkerRe finds "at "/"in " markers; the last one whose tail is
	// not a time expression introduces the location.
	locationMarkerRe = regexp.MustCompile(`(?i)\s(?:at|in)\s+`)

	dayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

	// fillerWords are dropped from the head of a fallback title.
	fillerWords = map[string]bool{
		"for": true, "on": true, "at": true, "in": true, "to": true,
		"the": true, "a": true, "an": true, "my": true,
		"titled": true, "named": true, "called": true,
	}
)

// Extract pulls creation slots out of the query. Never fails: missing fields
// are reported in Extraction.Missing rather than as an error.
func (x *Extractor) Extract(query string) Extraction {
	var s SlotSet

	startTime, timeEnd := extractTime(query)
	s.StartTime = startTime
	if s.StartTime != "" {
		s.EndTime = addHour(s.StartTime)
	}

	s.Date = x.extractDate(query)
	s.Location = extractLocation(query)
	s.Title = extractTitle(query, timeEnd)

	var missing []string
	if s.Title == "" {
		missing = append(missing, FieldTitle)
	}
	if s.Date == "" {
		missing = append(missing, FieldDate)
	}
	if s.StartTime == "" {
		missing = append(missing, FieldStartTime)
	}
	return Extraction{Slots: s, Missing: missing}
}

// DetectAmbiguity flags vague creation-style queries. Only queries carrying
// a creation verb are checked; informational questions are never flagged.
// "time" is flagged when no clock-like token, day name, or relative day word
// appears; "date" when no day name, relative day word, or explicit date
// appears.
func DetectAmbiguity(query string) []string {
	q := strings.ToLower(query)
	if !strings.Contains(q, "schedule") && !strings.Contains(q, "create") {
		return nil
	}

	var missing []string
	if !hasClockToken(q) && !hasDayWord(q) {
		missing = append(missing, "time")
	}
	if !hasDayWord(q) && !explicitDateRe.MatchString(q) {
		missing = append(missing, "date")
	}
	return missing
}

// extractTime returns the normalized 24-hour time of the first clock-like
// token and the byte offset just past it, or ("", -1).
func extractTime(query string) (string, int) {
	for _, m := range clockRe.FindAllStringSubmatchIndex(query, -1) {
		hourStr := query[m[2]:m[3]]
		minuteStr := ""
		if m[4] >= 0 {
			minuteStr = query[m[4]:m[5]]
		}
		meridiem := ""
		if m[6] >= 0 {
			meridiem = strings.ToLower(query[m[6]:m[7]])
		}
		// A bare number is not a time.
		if minuteStr == "" && meridiem == "" {
			continue
		}

		hour, err := strconv.Atoi(hourStr)
		if err != nil || hour > 23 {
			continue
		}
		if meridiem == "pm" && hour < 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
		if minuteStr == "" {
			minuteStr = "00"
		}
		return fmt.Sprintf("%02d:%s", hour, minuteStr), m[1]
	}
	return "", -1
}

// addHour returns t plus one hour, wrapping past midnight.
func addHour(t string) string {
	hour, err := strconv.Atoi(t[:2])
	if err != nil {
		return t
	}
	return fmt.Sprintf("%02d:%s", (hour+1)%24, t[3:])
}

func (x *Extractor) extractDate(query string) string {
	q := strings.ToLower(query)
	today := x.now().In(x.tz)
	switch {
	case strings.Contains(q, "today"):
		return today.Format("2006-01-02")
	case strings.Contains(q, "tomorrow"):
		return today.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if m := explicitDateRe.FindStringSubmatch(query); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}
	return ""
}

// extractLocation returns the trailing "at X" / "in X" phrase. Phrases
// beginning with a digit are time expressions, not places.
func extractLocation(query string) string {
	matches := locationMarkerRe.FindAllStringIndex(query, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		phrase := strings.TrimSpace(query[matches[i][1]:])
		if phrase == "" || phrase[0] >= '0' && phrase[0] <= '9' {
			continue
		}
		return strings.TrimRight(phrase, ".?!")
	}
	return ""
}

// extractTitle prefers an explicit marker ("named X") and otherwise takes up
// to eight words following the time token, with filler stripped. timeEnd is
// the offset just past the time token, or -1 when no time was found.
func extractTitle(query string, timeEnd int) string {
	if m := titleMarkerRe.FindStringSubmatch(query); m != nil {
		// The marker may precede the date and time phrase ("named Demo
		// Review tomorrow at 3pm"); cut the capture before those tokens.
		return trimTitle(cutAtDateTime(m[1]))
	}
	if timeEnd < 0 || timeEnd >= len(query) {
		return ""
	}
	return trimTitle(query[timeEnd:])
}

// cutAtDateTime truncates s before the first clock token, relative day word,
// day name, or explicit date.
func cutAtDateTime(s string) string {
	cut := len(s)
	if i := timeTokenStart(s); i >= 0 && i < cut {
		cut = i
	}
	lower := strings.ToLower(s)
	for _, w := range append([]string{"today", "tomorrow"}, dayNames...) {
		if i := strings.Index(lower, w); i >= 0 && i < cut {
			cut = i
		}
	}
	if loc := explicitDateRe.FindStringIndex(s); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	return s[:cut]
}

// timeTokenStart returns the start offset of the first clock-like token in s,
// or -1. Bare numbers do not count, mirroring extractTime.
func timeTokenStart(s string) int {
	for _, m := range clockRe.FindAllStringSubmatchIndex(s, -1) {
		if m[4] < 0 && m[6] < 0 {
			continue
		}
		if hour, err := strconv.Atoi(s[m[2]:m[3]]); err != nil || hour > 23 {
			continue
		}
		return m[0]
	}
	return -1
}

// trimTitle strips a trailing location phrase and leading filler, then caps
// the result at eight words.
func trimTitle(raw string) string {
	if locs := locationMarkerRe.FindAllStringIndex(raw, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		tail := strings.TrimSpace(raw[last[1]:])
		if tail != "" && (tail[0] < '0' || tail[0] > '9') {
			raw = raw[:last[0]]
		}
	}
	words := strings.Fields(raw)
	for len(words) > 0 && fillerWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && fillerWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.TrimRight(strings.Join(words, " "), ".?!,")
}

func hasClockToken(q string) bool {
	t, _ := extractTime(q)
	return t != ""
}

// hasDayWord reports a day name or relative day token. Explicit calendar
// dates are handled separately: they anchor the date but say nothing about
// the time of day.
func hasDayWord(q string) bool {
	if strings.Contains(q, "today") || strings.Contains(q, "tomorrow") {
		return true
	}
	for _, day := range dayNames {
		if strings.Contains(q, day) {
			return true
		}
	}
	return false
}
