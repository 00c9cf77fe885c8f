package grading

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/aulalink/aulalink-backend/internal/domain"
	"github.com/aulalink/aulalink-backend/internal/platform/dbctx"
	"github.com/aulalink/aulalink-backend/internal/platform/logger"
)

type SubmissionRepo interface {
	Create(dbc dbctx.Context, subs []*types.Submission) ([]*types.Submission, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error)
	GetByAssignmentID(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.Submission, error)
	UpdateArtifacts(dbc dbctx.Context, id uuid.UUID, artifacts datatypes.JSON, gradedAt time.Time) error
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	repoLog := baseLog.With("repo", "SubmissionRepo")
	return &submissionRepo{db: db, log: repoLog}
}

func (r *submissionRepo) Create(dbc dbctx.Context, subs []*types.Submission) ([]*types.Submission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(subs) == 0 {
		return []*types.Submission{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *submissionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Submission
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *submissionRepo) GetByAssignmentID(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.Submission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Submission
	if err := transaction.WithContext(dbc.Ctx).
		Where("assignment_id = ?", assignmentID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateArtifacts replaces the artifact list and stamps graded_at. It
// deliberately leaves score, letter_grade and comment alone; those are
// owned by the grading screens, not the annotation engine.
func (r *submissionRepo) UpdateArtifacts(dbc dbctx.Context, id uuid.UUID, artifacts datatypes.JSON, gradedAt time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"artifacts":  artifacts,
			"graded_at":  gradedAt,
			"updated_at": time.Now(),
		}).Error; err != nil {
		return err
	}
	return nil
}

func (r *submissionRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(ids) == 0 {
		return nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.Submission{}).Error; err != nil {
		return err
	}
	return nil
}
