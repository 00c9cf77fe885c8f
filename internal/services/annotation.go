package services

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aulalink/aulalink-backend/internal/annotation"
	"github.com/aulalink/aulalink-backend/internal/annotation/annoterr"
	"github.com/aulalink/aulalink-backend/internal/annotation/canvas"
	"github.com/aulalink/aulalink-backend/internal/annotation/flatten"
	"github.com/aulalink/aulalink-backend/internal/annotation/pdfdoc"
	repos "github.com/aulalink/aulalink-backend/internal/data/repos/grading"
	types "github.com/aulalink/aulalink-backend/internal/domain"
	"github.com/aulalink/aulalink-backend/internal/platform/dbctx"
	"github.com/aulalink/aulalink-backend/internal/platform/envutil"
	"github.com/aulalink/aulalink-backend/internal/platform/gcp"
	"github.com/aulalink/aulalink-backend/internal/platform/logger"
)

// EditorSession is one grader's single-user editing session over one
// submission. Pointer/page operations are serialized through With, the
// analog of the UI event queue; Save is additionally guarded so a second
// export cannot start while one is in flight.
type EditorSession struct {
	ID           uuid.UUID
	SubmissionID uuid.UUID
	OriginalName string

	original []byte
	doc      *pdfdoc.Document
	sess     *annotation.Session

	mu        sync.Mutex
	exporting atomic.Bool
}

// With runs f with exclusive access to the underlying session.
func (es *EditorSession) With(f func(*annotation.Session) error) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return f(es.sess)
}

func (es *EditorSession) close() {
	_ = es.doc.Close()
}

type AnnotationService interface {
	Open(dbc dbctx.Context, submissionID uuid.UUID) (*EditorSession, error)
	Get(sessionID uuid.UUID) (*EditorSession, bool)
	Close(sessionID uuid.UUID)
	Save(dbc dbctx.Context, sessionID uuid.UUID) (*types.Artifact, error)
}

type annotationService struct {
	db             *gorm.DB
	log            *logger.Logger
	bucketService  gcp.BucketService
	sourceService  SourceService
	submissionRepo repos.SubmissionRepo

	fnt  *truetype.Font
	zoom float64

	mu       sync.Mutex
	sessions map[uuid.UUID]*EditorSession
}

func NewAnnotationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	bucketService gcp.BucketService,
	sourceService SourceService,
	submissionRepo repos.SubmissionRepo,
) (AnnotationService, error) {
	serviceLog := baseLog.With("service", "AnnotationService")

	fnt, err := loadAnnotationFont()
	if err != nil {
		return nil, fmt.Errorf("could not load annotation font: %w", err)
	}

	return &annotationService{
		db:             db,
		log:            serviceLog,
		bucketService:  bucketService,
		sourceService:  sourceService,
		submissionRepo: submissionRepo,
		fnt:            fnt,
		zoom:           envutil.Float("ANNOTATION_ZOOM", pdfdoc.DefaultZoom),
		sessions:       map[uuid.UUID]*EditorSession{},
	}, nil
}

func loadAnnotationFont() (*truetype.Font, error) {
	fontPath := strings.TrimSpace(os.Getenv("ANNOTATION_FONT"))
	if fontPath == "" {
		return canvas.DefaultFont()
	}
	raw, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	return truetype.Parse(raw)
}

// Open loads the submission's PDF and mounts a fresh editing session on
// page 1. A load failure aborts entering edit mode.
func (as *annotationService) Open(dbc dbctx.Context, submissionID uuid.UUID) (*EditorSession, error) {
	sub, err := as.submissionRepo.GetByID(dbc, submissionID)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, fmt.Errorf("submission %s: %w", submissionID, err))
	}

	raw, err := as.sourceService.Fetch(dbc.Ctx, PdfSource{
		StoragePath: sub.StorageKey,
		PdfURL:      sub.FileURL,
	})
	if err != nil {
		return nil, err
	}

	doc, err := pdfdoc.Open(raw)
	if err != nil {
		return nil, err
	}
	sess, err := annotation.NewSession(doc, as.fnt, as.zoom)
	if err != nil {
		_ = doc.Close()
		return nil, err
	}

	es := &EditorSession{
		ID:           uuid.New(),
		SubmissionID: sub.ID,
		OriginalName: sub.OriginalName,
		original:     raw,
		doc:          doc,
		sess:         sess,
	}

	as.mu.Lock()
	as.sessions[es.ID] = es
	as.mu.Unlock()

	as.log.Info("Annotation session opened",
		"session_id", es.ID,
		"submission_id", sub.ID,
		"pages", doc.PageCount(),
	)
	return es, nil
}

func (as *annotationService) Get(sessionID uuid.UUID) (*EditorSession, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	es, ok := as.sessions[sessionID]
	return es, ok
}

func (as *annotationService) Close(sessionID uuid.UUID) {
	as.mu.Lock()
	es, ok := as.sessions[sessionID]
	delete(as.sessions, sessionID)
	as.mu.Unlock()
	if ok {
		es.close()
	}
}

// Save flattens every stored overlay into a new annotated PDF, uploads
// it and replaces the submission's artifact list with exactly the new
// artifact. Prior artifacts are deleted from storage: at most one
// artifact is attached to a grading record at a time.
func (as *annotationService) Save(dbc dbctx.Context, sessionID uuid.UUID) (*types.Artifact, error) {
	es, ok := as.Get(sessionID)
	if !ok {
		return nil, annoterr.Wrap(annoterr.ErrPersistence, fmt.Errorf("unknown session %s", sessionID))
	}
	if !es.exporting.CompareAndSwap(false, true) {
		return nil, annoterr.ErrExportInFlight
	}
	defer es.exporting.Store(false)

	// Flush pending edits strictly before the store is read.
	var overlays map[int][]byte
	if err := es.With(func(sess *annotation.Session) error {
		var err error
		overlays, err = sess.Overlays()
		return err
	}); err != nil {
		return nil, annoterr.Wrap(annoterr.ErrEncoding, err)
	}

	out, err := flatten.Flatten(es.original, overlays)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fileName := ArtifactFileName(es.OriginalName, now)
	key := fmt.Sprintf("feedback/%s/%s", es.SubmissionID, fileName)

	if err := as.bucketService.UploadFile(dbc, gcp.BucketCategoryFeedback, key, bytes.NewReader(out)); err != nil {
		return nil, annoterr.Wrap(annoterr.ErrStorage, err)
	}

	sub, err := as.submissionRepo.GetByID(dbc, es.SubmissionID)
	if err != nil {
		as.log.Error("uploaded artifact may be orphaned", "key", key, "error", err)
		return nil, annoterr.Wrap(annoterr.ErrPersistence, err)
	}
	priors, err := types.DecodeArtifacts(sub.Artifacts)
	if err != nil {
		as.log.Error("uploaded artifact may be orphaned", "key", key, "error", err)
		return nil, annoterr.Wrap(annoterr.ErrPersistence, err)
	}
	for _, prior := range priors {
		if prior.Path == "" || prior.Path == key {
			continue
		}
		// Legacy rows may point at the material bucket; delete from
		// wherever the artifact actually lives.
		category := gcp.BucketCategoryFeedback
		if prior.Bucket == as.bucketService.BucketName(gcp.BucketCategoryMaterial) {
			category = gcp.BucketCategoryMaterial
		}
		if err := as.bucketService.DeleteFile(dbc, category, prior.Path); err != nil {
			return nil, annoterr.Wrap(annoterr.ErrStorage, fmt.Errorf("delete prior artifact %s: %w", prior.Path, err))
		}
	}

	artifact := types.Artifact{
		Bucket:    as.bucketService.BucketName(gcp.BucketCategoryFeedback),
		Path:      key,
		FileName:  fileName,
		MimeType:  "application/pdf",
		FileSize:  int64(len(out)),
		CreatedAt: now,
	}
	encoded, err := types.EncodeArtifacts([]types.Artifact{artifact})
	if err != nil {
		as.log.Error("uploaded artifact may be orphaned", "key", key, "error", err)
		return nil, annoterr.Wrap(annoterr.ErrPersistence, err)
	}
	if err := as.submissionRepo.UpdateArtifacts(dbc, es.SubmissionID, encoded, now); err != nil {
		as.log.Error("uploaded artifact may be orphaned", "key", key, "error", err)
		return nil, annoterr.Wrap(annoterr.ErrPersistence, err)
	}

	as.log.Info("Annotated artifact saved",
		"session_id", es.ID,
		"submission_id", es.SubmissionID,
		"key", key,
		"size", len(out),
		"overlays", len(overlays),
	)
	return &artifact, nil
}
