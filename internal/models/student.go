package models

// Student is the slice of the student roster needed on reports.
type Student struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	ClassID  string `db:"class_id" json:"class_id"`
}
