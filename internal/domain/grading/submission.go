package grading

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	FirstName string    `gorm:"column:first_name" json:"first_name"`
	LastName  string    `gorm:"column:last_name" json:"last_name"`
	Role      string    `gorm:"column:role;not null;default:'student'" json:"role"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

type Assignment struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID uuid.UUID  `gorm:"type:uuid;index" json:"course_id"`
	Title    string     `gorm:"not null" json:"title"`
	DueAt    *time.Time `gorm:"column:due_at" json:"due_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Assignment) TableName() string { return "assignment" }

// Submission is the grading record an annotated artifact attaches to.
// The annotation engine only ever touches Artifacts and GradedAt; score,
// letter grade and comment belong to the grading screens.
type Submission struct {
	ID           uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AssignmentID uuid.UUID   `gorm:"type:uuid;not null;index" json:"assignment_id"`
	Assignment   *Assignment `gorm:"constraint:OnDelete:CASCADE;foreignKey:AssignmentID;references:ID" json:"assignment,omitempty"`
	StudentID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"student_id"`
	Student      *User       `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:ID" json:"student,omitempty"`

	OriginalName string `gorm:"column:original_name;not null" json:"original_name"`
	MimeType     string `gorm:"column:mime_type" json:"mime_type"`
	StorageKey   string `gorm:"column:storage_key;not null" json:"storage_key"`
	FileURL      string `gorm:"column:file_url" json:"file_url"`

	Score       *float64       `gorm:"column:score" json:"score,omitempty"`
	LetterGrade string         `gorm:"column:letter_grade" json:"letter_grade,omitempty"`
	Comment     string         `gorm:"column:comment" json:"comment,omitempty"`
	Artifacts   datatypes.JSON `gorm:"column:artifacts;type:jsonb" json:"artifacts"`
	GradedAt    *time.Time     `gorm:"column:graded_at;index" json:"graded_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Submission) TableName() string { return "submission" }
