package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aulalink/aulalink-backend/internal/annotation/annoterr"
	"github.com/aulalink/aulalink-backend/internal/platform/gcp"
	"github.com/aulalink/aulalink-backend/internal/platform/logger"
)

// PdfSource identifies the document to annotate: either a fetchable URL
// or a (bucket, path) pair in durable storage. StoragePath wins when
// both are present.
type PdfSource struct {
	PdfURL        string `json:"pdf_url,omitempty"`
	StorageBucket string `json:"storage_bucket,omitempty"`
	StoragePath   string `json:"storage_path,omitempty"`
}

type SourceService interface {
	Fetch(ctx context.Context, src PdfSource) ([]byte, error)
}

type sourceService struct {
	log           *logger.Logger
	bucketService gcp.BucketService
	httpClient    *http.Client
}

func NewSourceService(baseLog *logger.Logger, bucketService gcp.BucketService) SourceService {
	return &sourceService{
		log:           baseLog.With("service", "SourceService"),
		bucketService: bucketService,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (ss *sourceService) Fetch(ctx context.Context, src PdfSource) ([]byte, error) {
	if path := strings.TrimSpace(src.StoragePath); path != "" {
		return ss.fetchFromStorage(ctx, src.StorageBucket, path)
	}
	if url := strings.TrimSpace(src.PdfURL); url != "" {
		return ss.fetchFromURL(ctx, url)
	}
	return nil, annoterr.Wrap(annoterr.ErrLoad, fmt.Errorf("pdf source has neither a storage path nor a url"))
}

func (ss *sourceService) fetchFromStorage(ctx context.Context, bucket, path string) ([]byte, error) {
	category := gcp.BucketCategoryMaterial
	if bucket == ss.bucketService.BucketName(gcp.BucketCategoryFeedback) {
		category = gcp.BucketCategoryFeedback
	}
	rc, err := ss.bucketService.DownloadFile(ctx, category, path)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, err)
	}
	return raw, nil
}

func (ss *sourceService) fetchFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, err)
	}
	resp, err := ss.httpClient.Do(req)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, annoterr.Wrap(annoterr.ErrLoad, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, err)
	}
	return raw, nil
}
