package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-report-api/internal/models"
)

func score(v float64) *float64 {
	return &v
}

func name(v string) *string {
	return &v
}

func record(subject string, value float64, date string, tag models.SemesterTag) models.GradeRecord {
	return models.GradeRecord{
		StudentID:   "stu-1",
		SubjectID:   subject,
		SubjectName: name(subject),
		ClassID:     "class-1",
		Score:       score(value),
		GradeDate:   date,
		Semester:    tag,
	}
}

func TestAverageForGroupDivisors(t *testing.T) {
	three := []models.GradeRecord{
		record("math", 8, "01/25", models.SemesterFirst),
		record("khmer", 7, "01/25", models.SemesterFirst),
		record("science", 6, "01/25", models.SemesterFirst),
	}
	assert.Equal(t, 7.0, AverageForGroup(three, 5))

	credit := []models.GradeRecord{
		record("math", 300, "01/25", models.SemesterFirst),
		record("khmer", 260, "01/25", models.SemesterFirst),
	}
	assert.Equal(t, 40.0, AverageForGroup(credit, 7))
	assert.Equal(t, 40.0, AverageForGroup(credit, 8))

	upper := []models.GradeRecord{
		record("math", 200, "01/25", models.SemesterFirst),
		record("khmer", 178, "01/25", models.SemesterFirst),
	}
	assert.InDelta(t, 45.0, AverageForGroup(upper, 9), 1e-9)
}

func TestAverageForGroupCountsDistinctSubjects(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 6, "01/25", models.SemesterFirst),
		record("math", 4, "02/25", models.SemesterFirst),
		record("khmer", 10, "01/25", models.SemesterFirst),
	}
	assert.Equal(t, 10.0, AverageForGroup(records, 3))
}

func TestAverageForGroupEmptyIsZero(t *testing.T) {
	for level := models.GradeLevel(1); level <= 6; level++ {
		assert.Equal(t, 0.0, AverageForGroup(nil, level))
	}
	assert.Equal(t, 0.0, AverageForGroup(nil, 7))
	assert.Equal(t, 0.0, AverageForGroup(nil, 9))
}

func TestAverageForGroupUnknownLevelFallsBack(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 9, "01/25", models.SemesterFirst),
		record("khmer", 5, "01/25", models.SemesterFirst),
	}
	assert.Equal(t, 7.0, AverageForGroup(records, 0))
	assert.Equal(t, 7.0, AverageForGroup(records, 12))
}

func TestAverageForGroupMissingScoreCountsAsZero(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 9, "01/25", models.SemesterFirst),
		{SubjectID: "khmer", GradeDate: "01/25", Semester: models.SemesterFirst},
	}
	assert.Equal(t, 4.5, AverageForGroup(records, 2))
}

func TestSemesterAverageEmpty(t *testing.T) {
	for _, tag := range []models.SemesterTag{models.SemesterFirst, models.SemesterSecond} {
		for _, level := range []models.GradeLevel{1, 5, 7, 9, 42} {
			assert.Equal(t, models.SemesterResult{}, SemesterAverage(nil, tag, level))
		}
	}
}

func TestSemesterAverageUsesLastMonthSubjectCount(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 8, "01/25", models.SemesterFirst),
		record("khmer", 6, "01/25", models.SemesterFirst),
		record("math", 9, "02/25", models.SemesterFirst),
		record("khmer", 7, "02/25", models.SemesterFirst),
		record("math", 10, "03/25", models.SemesterFirst),
		record("khmer", 8, "03/25", models.SemesterFirst),
		record("science", 6, "03/25", models.SemesterFirst),
	}

	result := SemesterAverage(records, models.SemesterFirst, 5)
	assert.Equal(t, 8.0, result.LastMonth)
	// mean(14, 16) divided by the three subjects of March, not by two.
	assert.Equal(t, 5.0, result.PreviousMonths)
	assert.Equal(t, 6.5, result.Overall)
}

func TestSemesterAverageFixedDivisor(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 70, "10/24", models.SemesterFirst),
		record("khmer", 70, "10/24", models.SemesterFirst),
		record("math", 110, "11/24", models.SemesterFirst),
		record("khmer", 100, "11/24", models.SemesterFirst),
		record("math", 150, "12/24", models.SemesterFirst),
		record("khmer", 130, "12/24", models.SemesterFirst),
	}

	result := SemesterAverage(records, models.SemesterFirst, 8)
	assert.Equal(t, 20.0, result.LastMonth)
	assert.Equal(t, 12.5, result.PreviousMonths)
	assert.Equal(t, 16.25, result.Overall)
}

func TestSemesterAverageSingleMonthHalvesOverall(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 8, "03/25", models.SemesterSecond),
		record("khmer", 6, "03/25", models.SemesterSecond),
	}
	result := SemesterAverage(records, models.SemesterSecond, 4)
	assert.Equal(t, 7.0, result.LastMonth)
	assert.Equal(t, 0.0, result.PreviousMonths)
	assert.Equal(t, 3.5, result.Overall)
}

func TestSemesterAverageOrdersAcrossYears(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 4, "01/25", models.SemesterFirst),
		record("math", 10, "12/24", models.SemesterFirst),
		record("math", 6, "11/24", models.SemesterFirst),
	}
	result := SemesterAverage(records, models.SemesterFirst, 1)
	assert.Equal(t, 4.0, result.LastMonth)
	assert.Equal(t, 8.0, result.PreviousMonths)

	last, ok := LastMonth(records, models.SemesterFirst)
	require.True(t, ok)
	assert.Equal(t, "01/25", last.String())
}

func TestSemesterAverageIgnoresOtherSemesterAndBadLabels(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 8, "1/25", models.SemesterFirst),
		record("khmer", 6, "01/25", models.SemesterFirst),
		record("math", 50, "garbage", models.SemesterFirst),
		record("math", 50, "13/25", models.SemesterFirst),
		record("math", 50, "05/25", models.SemesterSecond),
	}
	result := SemesterAverage(records, models.SemesterFirst, 2)
	assert.Equal(t, 7.0, result.LastMonth)
	assert.Equal(t, 0.0, result.PreviousMonths)

	onlyBad := []models.GradeRecord{record("math", 9, "n/a", models.SemesterFirst)}
	assert.Equal(t, models.SemesterResult{}, SemesterAverage(onlyBad, models.SemesterFirst, 2))
}

func TestCombineSemesterIsSimpleMean(t *testing.T) {
	assert.Equal(t, 35.0, CombineSemester(40, 30))
}

func TestYearlyAverageWithEmptySemester(t *testing.T) {
	first := models.SemesterResult{Overall: 50}
	assert.Equal(t, 25.0, YearlyAverage(first, models.SemesterResult{}))
	assert.Equal(t, 40.0, YearlyAverage(first, models.SemesterResult{Overall: 30}))
}

func TestFilterMonth(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 8, "1/25", models.SemesterFirst),
		record("khmer", 6, "01/25", models.SemesterFirst),
		record("math", 9, "02/25", models.SemesterFirst),
	}
	month, ok := models.ParseMonthLabel("01/25")
	require.True(t, ok)
	assert.Len(t, FilterMonth(records, month), 2)
}

func TestEndToEndMonthScenario(t *testing.T) {
	records := []models.GradeRecord{
		record("math", 80, "01/25", models.SemesterFirst),
		record("khmer", 70, "01/25", models.SemesterFirst),
		record("science", 60, "01/25", models.SemesterFirst),
	}
	average := AverageForGroup(records, 5)
	assert.Equal(t, 70.0, average)
	// Scores are not rescaled; a raw 70 is above every cut point of either table.
	assert.Equal(t, models.LetterA, LetterGrade(average, 9))
	assert.Equal(t, models.LetterA, LetterGrade(average, 5))
}
