package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GradeLevel is the school grade (1-9) of a class.
type GradeLevel int

// SemesterTag identifies one of the two reporting halves of a school year.
type SemesterTag string

const (
	SemesterFirst  SemesterTag = "1"
	SemesterSecond SemesterTag = "2"
)

// Valid reports whether the tag is one of the two known semesters.
func (t SemesterTag) Valid() bool {
	return t == SemesterFirst || t == SemesterSecond
}

// LetterGrade is the A-F classification of a numeric score.
type LetterGrade string

const (
	LetterA LetterGrade = "A"
	LetterB LetterGrade = "B"
	LetterC LetterGrade = "C"
	LetterD LetterGrade = "D"
	LetterE LetterGrade = "E"
	LetterF LetterGrade = "F"
)

// MonthLabel is the parsed form of a "MM/YY" grade date label.
type MonthLabel struct {
	Year  int
	Month time.Month
}

// ParseMonthLabel parses "MM/YY" or "MM/YYYY". Two digit years are read as 20YY and four digit
// years must fall in 2000-2099 so the label survives the round trip through String.
// Anything else, including signs and out of range months, yields ok=false.
func ParseMonthLabel(raw string) (MonthLabel, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 {
		return MonthLabel{}, false
	}
	monthPart, yearPart := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if len(monthPart) == 0 || len(monthPart) > 2 || !allDigits(monthPart) || !allDigits(yearPart) {
		return MonthLabel{}, false
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return MonthLabel{}, false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return MonthLabel{}, false
	}
	switch len(yearPart) {
	case 2:
		year += 2000
	case 4:
		if year < 2000 || year > 2099 {
			return MonthLabel{}, false
		}
	default:
		return MonthLabel{}, false
	}
	return MonthLabel{Year: year, Month: time.Month(month)}, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the canonical "MM/YY" label.
func (m MonthLabel) String() string {
	return fmt.Sprintf("%02d/%02d", int(m.Month), m.Year%100)
}

// Before reports whether m is chronologically earlier than other.
func (m MonthLabel) Before(other MonthLabel) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// GradeRecord is a single score for a student, subject and reporting month.
type GradeRecord struct {
	ID          string      `db:"id" json:"id"`
	StudentID   string      `db:"student_id" json:"student_id"`
	SubjectID   string      `db:"subject_id" json:"subject_id"`
	SubjectName *string     `db:"subject_name" json:"subject_name,omitempty"`
	ClassID     string      `db:"class_id" json:"class_id"`
	Score       *float64    `db:"score" json:"score,omitempty"`
	GradeDate   string      `db:"grade_date" json:"grade_date"`
	Semester    SemesterTag `db:"semester" json:"semester"`
	Comment     *string     `db:"comment" json:"comment,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ScoreValue returns the score, treating a missing score as zero.
func (r GradeRecord) ScoreValue() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// GradeRecordFilter scopes grade record queries.
type GradeRecordFilter struct {
	ClassID   string
	StudentID string
	SubjectID string
	Semester  SemesterTag
	GradeDate string
}

// SubjectSummary is the display row for one grade record.
type SubjectSummary struct {
	SubjectID   string      `json:"subject_id"`
	SubjectName string      `json:"subject_name"`
	GradeDate   string      `json:"grade_date"`
	Score       float64     `json:"score"`
	MaxScore    float64     `json:"max_score"`
	Percentage  float64     `json:"percentage"`
	LetterGrade LetterGrade `json:"letter_grade"`
	Comment     string      `json:"comment,omitempty"`
}

// SemesterResult holds the three semester averages.
type SemesterResult struct {
	LastMonth      float64 `json:"last_month"`
	PreviousMonths float64 `json:"previous_months"`
	Overall        float64 `json:"overall"`
}

// MonthlyAverage is the month summary of a student.
type MonthlyAverage struct {
	Month        string      `json:"month"`
	AverageScore float64     `json:"average_score"`
	LetterGrade  LetterGrade `json:"letter_grade"`
}

// SemesterAverage is the semester summary of a student.
type SemesterAverage struct {
	Semester       SemesterTag `json:"semester"`
	SemesterName   string      `json:"semester_name"`
	LastMonth      string      `json:"last_month,omitempty"`
	LastMonthScore float64     `json:"last_month_score"`
	PreviousScore  float64     `json:"previous_months_score"`
	AverageScore   float64     `json:"average_score"`
	LetterGrade    LetterGrade `json:"letter_grade"`
}

// YearlyAverage is the school year summary of a student.
type YearlyAverage struct {
	AverageScore float64     `json:"average_score"`
	LetterGrade  LetterGrade `json:"letter_grade"`
}
