package grading

import "github.com/noah-isme/school-report-api/internal/models"

// UnknownSubject is the display name used when a record carries no subject name.
const UnknownSubject = "Unknown Subject"

// SummaryMaxScore is the fixed scale of per-subject display rows.
const SummaryMaxScore = 100.0

// fixedDivisors holds the credit-weighted divisors. Levels absent here divide by
// the number of distinct subjects instead.
var fixedDivisors = map[models.GradeLevel]float64{
	7: 14,
	8: 14,
	9: 8.4,
}

type threshold struct {
	min   float64
	grade models.LetterGrade
}

// Scales are ordered from the highest cut point down; the first match wins.
var (
	primaryScale = []threshold{
		{9, models.LetterA},
		{8, models.LetterB},
		{7, models.LetterC},
		{6, models.LetterD},
		{5, models.LetterE},
	}
	secondaryScale = []threshold{
		{45, models.LetterA},
		{40, models.LetterB},
		{35, models.LetterC},
		{30, models.LetterD},
		{25, models.LetterE},
	}
)

var scaleByLevel = map[models.GradeLevel][]threshold{
	1: primaryScale,
	2: primaryScale,
	3: primaryScale,
	4: primaryScale,
	5: primaryScale,
	6: primaryScale,
	7: secondaryScale,
	8: secondaryScale,
	9: secondaryScale,
}

// DefaultSemesterNames are the display names used when none are configured.
var DefaultSemesterNames = map[models.SemesterTag]string{
	models.SemesterFirst:  "First Semester",
	models.SemesterSecond: "Second Semester",
}

// SemesterCatalog maps semester tags to display names.
type SemesterCatalog struct {
	names map[models.SemesterTag]string
}

// NewSemesterCatalog copies the provided names over the defaults. Blank names are ignored.
func NewSemesterCatalog(names map[models.SemesterTag]string) *SemesterCatalog {
	merged := make(map[models.SemesterTag]string, len(DefaultSemesterNames))
	for tag, name := range DefaultSemesterNames {
		merged[tag] = name
	}
	for tag, name := range names {
		if name != "" {
			merged[tag] = name
		}
	}
	return &SemesterCatalog{names: merged}
}

// Name returns the display name for tag, or the raw tag when it is unknown.
func (c *SemesterCatalog) Name(tag models.SemesterTag) string {
	if c != nil {
		if name, ok := c.names[tag]; ok {
			return name
		}
	}
	if name, ok := DefaultSemesterNames[tag]; ok {
		return name
	}
	return string(tag)
}
