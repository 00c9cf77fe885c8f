package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/aulalink/aulalink-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
		Role:      "student",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedAssignment(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.Assignment {
	tb.Helper()
	a := &types.Assignment{
		ID:       uuid.New(),
		CourseID: uuid.New(),
		Title:    "assignment",
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed assignment: %v", err)
	}
	return a
}

func SeedSubmission(tb testing.TB, ctx context.Context, tx *gorm.DB, assignmentID, studentID uuid.UUID) *types.Submission {
	tb.Helper()
	s := &types.Submission{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		StudentID:    studentID,
		OriginalName: "tarea.pdf",
		MimeType:     "application/pdf",
		StorageKey:   "materials/tarea.pdf",
		Artifacts:    datatypes.JSON([]byte("[]")),
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed submission: %v", err)
	}
	return s
}
