package model

import (
	"time"
)

const EnrollmentCompleted = "COMPLETED"

type Course struct {
	ID           string  `gorm:"primaryKey;size:64" json:"id"`
	Title        string  `gorm:"size:255" json:"title"`
	DepartmentID *string `gorm:"size:64" json:"department_id,omitempty"`
	CategoryID   *string `gorm:"size:64" json:"category_id,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

type Enrollment struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	UserID      string     `gorm:"index:idx_enrollment_user;size:64;not null" json:"user_id"`
	CourseID    string     `gorm:"size:64;not null" json:"course_id"`
	Status      string     `gorm:"size:32;not null" json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// ModuleProgress is the source of learning-activity days.
type ModuleProgress struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	EnrollmentID string     `gorm:"index:idx_progress_enrollment;size:64;not null" json:"enrollment_id"`
	ModuleID     string     `gorm:"size:64;not null" json:"module_id"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (ModuleProgress) TableName() string {
	return "module_progress"
}
