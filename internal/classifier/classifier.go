package classifier

import (
	"regexp"
	"strings"
)

// Label is the discipline a drawing sheet belongs to.
type Label string

const (
	Architectural Label = "architectural"
	Structural    Label = "structural"
	Mechanical    Label = "mechanical"
	Electrical    Label = "electrical"
	Plumbing      Label = "plumbing"
	Landscape     Label = "landscape"
	Civil         Label = "civil"
	FireSafety    Label = "fire_safety"
	CoverTitle    Label = "cover_title"
	Details       Label = "details"
	Schedules     Label = "schedules"
	Other         Label = "other"
)

// Labels lists every category in the order analyses report them.
var Labels = []Label{
	Architectural, Structural, Mechanical, Electrical, Plumbing, Landscape,
	Civil, FireSafety, CoverTitle, Details, Schedules, Other,
}

type sheetPattern struct {
	label Label
	re    *regexp.Regexp
}

// Sheet-number prefixes, tried in this order. "[ -.]" is a character range
// (space through period), not a three-character set.
var sheetPatterns = []sheetPattern{
	{CoverTitle, regexp.MustCompile(`\bG[ -.]?\d`)},
	{Architectural, regexp.MustCompile(`\bA[ -.]?\d`)},
	{Structural, regexp.MustCompile(`\bS[ -.]?\d`)},
	{Mechanical, regexp.MustCompile(`\bM[ -.]?\d`)},
	{Electrical, regexp.MustCompile(`\bE[ -.]?\d`)},
	{Plumbing, regexp.MustCompile(`\bP[ -.]?\d`)},
	{Landscape, regexp.MustCompile(`\bL[ -.]?\d`)},
	{Civil, regexp.MustCompile(`\bC[ -.]?\d`)},
	{FireSafety, regexp.MustCompile(`\bFP?[ -.]?\d`)},
}

type keywordRule struct {
	label Label
	words []string
}

var disciplineKeywords = []keywordRule{
	{FireSafety, []string{"FIRE PROTECTION", "FIRE ALARM", "SPRINKLER", "EGRESS"}},
	{Mechanical, []string{"HVAC", "MECHANICAL", "DUCTWORK"}},
	{Electrical, []string{"ELECTRICAL", "LIGHTING", "PANEL", "ONE-LINE"}},
	{Plumbing, []string{"PLUMBING", "SANITARY", "STORM DRAIN", "RISER DIAGRAM"}},
	{Civil, []string{"CIVIL", "GRADING", "UTILITIES", "SITE PLAN"}},
	{Architectural, []string{"FLOOR PLAN", "ELEVATION", "ARCHITECTURAL"}},
	{Structural, []string{"STRUCTURAL", "FOUNDATION", "FRAMING"}},
	{Landscape, []string{"LANDSCAPE", "PLANTING", "IRRIGATION"}},
}

var adminKeywords = []keywordRule{
	{CoverTitle, []string{"COVER", "SHEET INDEX", "GENERAL NOTES", "LEGEND", "ABBREVIATIONS"}},
	{Schedules, []string{"SCHEDULE", "DOOR SCHEDULE", "WINDOW SCHEDULE", "FINISH SCHEDULE"}},
	{Details, []string{"DETAIL", "CONNECTION", "ASSEMBLY", "SECTION DETAIL"}},
}

// Page is the text of one sheet: the whole page and the bottom-right
// title-block region.
type Page struct {
	Full       string
	TitleBlock string
}

// Classify assigns exactly one label to a page. The first matching rule wins:
// sheet numbers in the title block, sheet numbers anywhere, discipline
// keywords, administrative keywords, then Other.
func Classify(p Page) Label {
	corner := strings.ToUpper(p.TitleBlock)
	full := strings.ToUpper(p.Full)

	for _, text := range []string{corner, full} {
		for _, sp := range sheetPatterns {
			if sp.re.MatchString(text) {
				return sp.label
			}
		}
	}
	if l, ok := matchKeywords(full, disciplineKeywords); ok {
		return l
	}
	if l, ok := matchKeywords(full, adminKeywords); ok {
		return l
	}
	return Other
}

func matchKeywords(text string, rules []keywordRule) (Label, bool) {
	for _, r := range rules {
		for _, w := range r.words {
			if strings.Contains(text, w) {
				return r.label, true
			}
		}
	}
	return "", false
}
