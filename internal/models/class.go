package models

import "time"

// Class is a course section. Its grade level drives averaging and letter grades.
type Class struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	GradeLevel   GradeLevel `db:"grade_level" json:"grade_level"`
	AcademicYear string     `db:"academic_year" json:"academic_year"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
