package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aulalink/aulalink-backend/internal/annotation"
	"github.com/aulalink/aulalink-backend/internal/annotation/annoterr"
	"github.com/aulalink/aulalink-backend/internal/annotation/canvas"
	"github.com/aulalink/aulalink-backend/internal/annotation/flatten"
	"github.com/aulalink/aulalink-backend/internal/annotation/pdfdoc"
	"github.com/aulalink/aulalink-backend/internal/annotation/pdftest"
	types "github.com/aulalink/aulalink-backend/internal/domain"
	"github.com/aulalink/aulalink-backend/internal/platform/dbctx"
	"github.com/aulalink/aulalink-backend/internal/platform/gcp"
	"github.com/aulalink/aulalink-backend/internal/platform/logger"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads []string
	deletes []string

	failUpload error
	failDelete error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (fb *fakeBucket) UploadFile(dbc dbctx.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.failUpload != nil {
		return fb.failUpload
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	fb.objects[string(category)+"/"+key] = raw
	fb.uploads = append(fb.uploads, key)
	return nil
}

func (fb *fakeBucket) DeleteFile(dbc dbctx.Context, category gcp.BucketCategory, key string) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.failDelete != nil {
		return fb.failDelete
	}
	delete(fb.objects, string(category)+"/"+key)
	fb.deletes = append(fb.deletes, key)
	return nil
}

func (fb *fakeBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	raw, ok := fb.objects[string(category)+"/"+key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (fb *fakeBucket) ListKeys(ctx context.Context, category gcp.BucketCategory, prefix string) ([]string, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := []string{}
	for k := range fb.objects {
		if strings.HasPrefix(k, string(category)+"/"+prefix) {
			out = append(out, strings.TrimPrefix(k, string(category)+"/"))
		}
	}
	return out, nil
}

func (fb *fakeBucket) DeletePrefix(ctx context.Context, category gcp.BucketCategory, prefix string) error {
	keys, _ := fb.ListKeys(ctx, category, prefix)
	for _, k := range keys {
		if err := fb.DeleteFile(dbctx.Context{Ctx: ctx}, category, k); err != nil {
			return err
		}
	}
	return nil
}

func (fb *fakeBucket) BucketName(category gcp.BucketCategory) string {
	return "aulalink-" + string(category)
}

func (fb *fakeBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return "https://storage.googleapis.com/" + fb.BucketName(category) + "/" + key
}

func (fb *fakeBucket) object(category gcp.BucketCategory, key string) ([]byte, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	raw, ok := fb.objects[string(category)+"/"+key]
	return raw, ok
}

func (fb *fakeBucket) feedbackObject(key string) ([]byte, bool) {
	return fb.object(gcp.BucketCategoryFeedback, key)
}

type fakeSubmissionRepo struct {
	mu      sync.Mutex
	sub     *types.Submission
	updates int
}

func (fr *fakeSubmissionRepo) Create(dbc dbctx.Context, subs []*types.Submission) ([]*types.Submission, error) {
	return subs, nil
}

func (fr *fakeSubmissionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.sub == nil || fr.sub.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *fr.sub
	return &cp, nil
}

func (fr *fakeSubmissionRepo) GetByAssignmentID(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.Submission, error) {
	return nil, nil
}

func (fr *fakeSubmissionRepo) UpdateArtifacts(dbc dbctx.Context, id uuid.UUID, artifacts datatypes.JSON, gradedAt time.Time) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.sub == nil || fr.sub.ID != id {
		return gorm.ErrRecordNotFound
	}
	fr.sub.Artifacts = artifacts
	fr.sub.GradedAt = &gradedAt
	fr.updates++
	return nil
}

func (fr *fakeSubmissionRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	return nil
}

type fakeSource struct {
	raw []byte
}

func (fs *fakeSource) Fetch(ctx context.Context, src PdfSource) ([]byte, error) {
	if len(fs.raw) == 0 {
		return nil, annoterr.Wrap(annoterr.ErrLoad, errors.New("no fixture bytes"))
	}
	cp := make([]byte, len(fs.raw))
	copy(cp, fs.raw)
	return cp, nil
}

func newTestService(t *testing.T, bucket *fakeBucket, repo *fakeSubmissionRepo, raw []byte) *annotationService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	fnt, err := canvas.DefaultFont()
	if err != nil {
		t.Fatalf("font: %v", err)
	}
	return &annotationService{
		log:            log.With("service", "AnnotationService"),
		bucketService:  bucket,
		sourceService:  &fakeSource{raw: raw},
		submissionRepo: repo,
		fnt:            fnt,
		zoom:           pdfdoc.DefaultZoom,
		sessions:       map[uuid.UUID]*EditorSession{},
	}
}

func seedSubmission(artifacts datatypes.JSON) *types.Submission {
	return &types.Submission{
		ID:           uuid.New(),
		OriginalName: "Tarea Áéí #1.pdf",
		StorageKey:   "material/tarea1.pdf",
		Artifacts:    artifacts,
	}
}

func drawOnPage(t *testing.T, es *EditorSession) {
	t.Helper()
	if err := es.With(func(sess *annotation.Session) error {
		sess.PointerDown(20, 20)
		sess.PointerMove(80, 90)
		sess.PointerUp()
		return nil
	}); err != nil {
		t.Fatalf("draw: %v", err)
	}
}

func TestSaveReplacesPriorArtifacts(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	bucket := newFakeBucket()
	repo := &fakeSubmissionRepo{}

	// A legacy row: camelCase keys, an already-uploaded prior artifact.
	repo.sub = seedSubmission(datatypes.JSON(
		`[{"filePath":"feedback/old/annotated_1.pdf","fileName":"annotated_1.pdf","size":10}]`,
	))
	priorKey := "feedback/old/annotated_1.pdf"
	bucket.objects[string(gcp.BucketCategoryFeedback)+"/"+priorKey] = []byte("old bytes")

	svc := newTestService(t, bucket, repo, pdftest.MinimalPDF(2))

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close(es.ID)
	drawOnPage(t, es)

	artifact, err := svc.Save(dbc, es.ID)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	wantPrefix := "feedback/" + repo.sub.ID.String() + "/"
	if !strings.HasPrefix(artifact.Path, wantPrefix) {
		t.Errorf("artifact path %q, want prefix %q", artifact.Path, wantPrefix)
	}
	if !strings.HasSuffix(artifact.Path, ".pdf") || artifact.MimeType != "application/pdf" {
		t.Errorf("artifact %+v is not a pdf", artifact)
	}
	if artifact.Bucket != bucket.BucketName(gcp.BucketCategoryFeedback) {
		t.Errorf("artifact bucket = %q", artifact.Bucket)
	}

	out, ok := bucket.feedbackObject(artifact.Path)
	if !ok {
		t.Fatal("annotated pdf was not uploaded")
	}
	if int64(len(out)) != artifact.FileSize {
		t.Errorf("FileSize = %d, uploaded %d bytes", artifact.FileSize, len(out))
	}
	if pages, err := flatten.PageCount(out); err != nil || pages != 2 {
		t.Fatalf("uploaded artifact: pages=%d err=%v", pages, err)
	}

	// The prior artifact is gone from storage, not accumulated.
	if _, ok := bucket.feedbackObject(priorKey); ok {
		t.Error("prior artifact object still in storage")
	}

	stored, err := types.DecodeArtifacts(repo.sub.Artifacts)
	if err != nil {
		t.Fatalf("decode stored artifacts: %v", err)
	}
	if len(stored) != 1 || stored[0].Path != artifact.Path {
		t.Fatalf("stored artifacts = %+v, want exactly the new one", stored)
	}
	if repo.sub.GradedAt == nil || !repo.sub.GradedAt.Equal(artifact.CreatedAt) {
		t.Errorf("graded_at = %v, want %v", repo.sub.GradedAt, artifact.CreatedAt)
	}
}

func TestSaveDeletesPriorFromItsRecordedBucket(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	bucket := newFakeBucket()
	repo := &fakeSubmissionRepo{}

	// A legacy row whose artifact was written into the material bucket.
	materialBucket := bucket.BucketName(gcp.BucketCategoryMaterial)
	priorKey := "graded/legacy.pdf"
	repo.sub = seedSubmission(datatypes.JSON(
		`[{"bucket":"` + materialBucket + `","path":"` + priorKey + `","file_name":"legacy.pdf"}]`,
	))
	bucket.objects[string(gcp.BucketCategoryMaterial)+"/"+priorKey] = []byte("legacy bytes")

	svc := newTestService(t, bucket, repo, pdftest.MinimalPDF(1))

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close(es.ID)
	drawOnPage(t, es)

	artifact, err := svc.Save(dbc, es.ID)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := bucket.object(gcp.BucketCategoryMaterial, priorKey); ok {
		t.Error("prior artifact still in its recorded bucket")
	}
	if _, ok := bucket.feedbackObject(artifact.Path); !ok {
		t.Error("new artifact missing from the feedback bucket")
	}
}

func TestSaveWithoutInkExportsCleanCopy(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	bucket := newFakeBucket()
	repo := &fakeSubmissionRepo{sub: seedSubmission(nil)}
	original := pdftest.MinimalPDF(1)
	svc := newTestService(t, bucket, repo, original)

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close(es.ID)

	artifact, err := svc.Save(dbc, es.ID)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, ok := bucket.feedbackObject(artifact.Path)
	if !ok {
		t.Fatal("artifact not uploaded")
	}
	if !bytes.Equal(out, original) {
		t.Error("no overlays: uploaded bytes should equal the source document")
	}
}

func TestSaveRejectsConcurrentExport(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	bucket := newFakeBucket()
	repo := &fakeSubmissionRepo{sub: seedSubmission(nil)}
	svc := newTestService(t, bucket, repo, pdftest.MinimalPDF(1))

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close(es.ID)

	es.exporting.Store(true)
	if _, err := svc.Save(dbc, es.ID); !errors.Is(err, annoterr.ErrExportInFlight) {
		t.Fatalf("Save = %v, want ErrExportInFlight", err)
	}
	if len(bucket.uploads) != 0 {
		t.Error("rejected export must not upload anything")
	}

	// Releasing the guard lets the next export through.
	es.exporting.Store(false)
	if _, err := svc.Save(dbc, es.ID); err != nil {
		t.Fatalf("Save after release: %v", err)
	}
}

func TestSaveUploadFailureLeavesRecordUntouched(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	bucket := newFakeBucket()
	bucket.failUpload = errors.New("gcs unavailable")
	repo := &fakeSubmissionRepo{sub: seedSubmission(nil)}
	svc := newTestService(t, bucket, repo, pdftest.MinimalPDF(1))

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close(es.ID)
	drawOnPage(t, es)

	if _, err := svc.Save(dbc, es.ID); !errors.Is(err, annoterr.ErrStorage) {
		t.Fatalf("Save = %v, want ErrStorage", err)
	}
	if repo.updates != 0 || repo.sub.GradedAt != nil {
		t.Error("failed upload must not touch the grading record")
	}
	if !es.exporting.CompareAndSwap(false, true) {
		t.Error("export guard not released after failure")
	}
}

func TestSavePriorDeleteFailureAbortsBeforeMetadata(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	bucket := newFakeBucket()
	repo := &fakeSubmissionRepo{}
	repo.sub = seedSubmission(datatypes.JSON(
		`[{"path":"feedback/old/prev.pdf","file_name":"prev.pdf"}]`,
	))
	svc := newTestService(t, bucket, repo, pdftest.MinimalPDF(1))

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close(es.ID)
	drawOnPage(t, es)

	bucket.failDelete = errors.New("permission denied")
	if _, err := svc.Save(dbc, es.ID); !errors.Is(err, annoterr.ErrStorage) {
		t.Fatalf("Save = %v, want ErrStorage", err)
	}
	if repo.updates != 0 {
		t.Error("metadata must not be rewritten when prior cleanup fails")
	}
}

func TestOpenUnknownSubmission(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	svc := newTestService(t, newFakeBucket(), &fakeSubmissionRepo{}, pdftest.MinimalPDF(1))

	if _, err := svc.Open(dbc, uuid.New()); !errors.Is(err, annoterr.ErrLoad) {
		t.Fatalf("Open = %v, want ErrLoad", err)
	}
}

func TestCloseForgetsSession(t *testing.T) {
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := &fakeSubmissionRepo{sub: seedSubmission(nil)}
	svc := newTestService(t, newFakeBucket(), repo, pdftest.MinimalPDF(1))

	es, err := svc.Open(dbc, repo.sub.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := svc.Get(es.ID); !ok {
		t.Fatal("session not registered after Open")
	}
	svc.Close(es.ID)
	if _, ok := svc.Get(es.ID); ok {
		t.Fatal("session still registered after Close")
	}
}
