// Package grading computes monthly, semester and yearly averages and letter
// grades from raw grade records. Every function is pure and total: missing
// scores count as zero, unparseable month labels are skipped and unknown grade
// levels fall back to the levels 1-6 rules.
//
// Scores are never rescaled. Callers supply scores already on the scale of the
// level band (0-10 for levels 1-6, 0-50 for levels 7-9).
package grading

import (
	"sort"

	"github.com/noah-isme/school-report-api/internal/models"
)

// AverageForGroup divides the summed scores of records by the divisor for level.
func AverageForGroup(records []models.GradeRecord, level models.GradeLevel) float64 {
	return divide(sumScores(records), level, countSubjects(records))
}

// SemesterAverage averages the latest month of the semester against the mean of
// the months before it. Records tagged with another semester, and records whose
// grade date cannot be parsed, are ignored.
func SemesterAverage(records []models.GradeRecord, tag models.SemesterTag, level models.GradeLevel) models.SemesterResult {
	byMonth := groupByMonth(records, tag)
	if len(byMonth) == 0 {
		return models.SemesterResult{}
	}

	months := sortedMonths(byMonth)
	last := months[len(months)-1]
	lastRecords := byMonth[last]
	lastAverage := AverageForGroup(lastRecords, level)

	sums := make([]float64, 0, len(months)-1)
	for _, month := range months[:len(months)-1] {
		sums = append(sums, sumScores(byMonth[month]))
	}
	// The previous months share the last month's subject count as divisor context.
	previousAverage := divide(mean(sums), level, countSubjects(lastRecords))

	return models.SemesterResult{
		LastMonth:      lastAverage,
		PreviousMonths: previousAverage,
		Overall:        CombineSemester(lastAverage, previousAverage),
	}
}

// CombineSemester weighs the last month as much as the rest of the semester.
func CombineSemester(lastMonth, previousMonths float64) float64 {
	return (lastMonth + previousMonths) / 2
}

// YearlyAverage is the unweighted mean of both semester overalls. A semester
// without grades still counts as zero.
func YearlyAverage(first, second models.SemesterResult) float64 {
	return (first.Overall + second.Overall) / 2
}

// LastMonth returns the latest parseable month among records tagged with tag.
func LastMonth(records []models.GradeRecord, tag models.SemesterTag) (models.MonthLabel, bool) {
	byMonth := groupByMonth(records, tag)
	if len(byMonth) == 0 {
		return models.MonthLabel{}, false
	}
	months := sortedMonths(byMonth)
	return months[len(months)-1], true
}

// FilterMonth returns the records whose grade date parses to month.
func FilterMonth(records []models.GradeRecord, month models.MonthLabel) []models.GradeRecord {
	filtered := make([]models.GradeRecord, 0, len(records))
	for _, record := range records {
		if label, ok := models.ParseMonthLabel(record.GradeDate); ok && label == month {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func divide(total float64, level models.GradeLevel, subjects int) float64 {
	if divisor, ok := fixedDivisors[level]; ok {
		return total / divisor
	}
	if subjects == 0 {
		return 0
	}
	return total / float64(subjects)
}

func sumScores(records []models.GradeRecord) float64 {
	var total float64
	for _, record := range records {
		total += record.ScoreValue()
	}
	return total
}

func countSubjects(records []models.GradeRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		seen[subjectKey(record)] = struct{}{}
	}
	return len(seen)
}

func subjectKey(record models.GradeRecord) string {
	if record.SubjectID != "" {
		return record.SubjectID
	}
	if record.SubjectName != nil {
		return "name:" + *record.SubjectName
	}
	return ""
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func groupByMonth(records []models.GradeRecord, tag models.SemesterTag) map[models.MonthLabel][]models.GradeRecord {
	byMonth := make(map[models.MonthLabel][]models.GradeRecord)
	for _, record := range records {
		if record.Semester != tag {
			continue
		}
		label, ok := models.ParseMonthLabel(record.GradeDate)
		if !ok {
			continue
		}
		byMonth[label] = append(byMonth[label], record)
	}
	return byMonth
}

func sortedMonths(byMonth map[models.MonthLabel][]models.GradeRecord) []models.MonthLabel {
	months := make([]models.MonthLabel, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}
