package grading

import "github.com/noah-isme/school-report-api/internal/models"

// LetterGrade classifies score on the scale of level.
func LetterGrade(score float64, level models.GradeLevel) models.LetterGrade {
	scale, ok := scaleByLevel[level]
	if !ok {
		scale = primaryScale
	}
	for _, t := range scale {
		if score >= t.min {
			return t.grade
		}
	}
	return models.LetterF
}

// BuildSubjectSummary turns one record into its display row.
func BuildSubjectSummary(record models.GradeRecord, level models.GradeLevel) models.SubjectSummary {
	name := UnknownSubject
	if record.SubjectName != nil && *record.SubjectName != "" {
		name = *record.SubjectName
	}
	score := record.ScoreValue()
	summary := models.SubjectSummary{
		SubjectID:   record.SubjectID,
		SubjectName: name,
		GradeDate:   record.GradeDate,
		Score:       score,
		MaxScore:    SummaryMaxScore,
		Percentage:  score / SummaryMaxScore * 100,
		LetterGrade: LetterGrade(score, level),
	}
	if record.Comment != nil {
		summary.Comment = *record.Comment
	}
	return summary
}
