package grading

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Artifact is the canonical metadata record for one annotated PDF in
// durable storage. Rows written before the artifact schema was settled
// carry a mix of snake_case and camelCase keys; DecodeArtifacts accepts
// both and EncodeArtifacts only ever writes the canonical snake_case
// form, so the mix never leaks past this file.
type Artifact struct {
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

func EncodeArtifacts(artifacts []Artifact) (datatypes.JSON, error) {
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	raw, err := json.Marshal(artifacts)
	if err != nil {
		return nil, fmt.Errorf("encode artifacts: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func DecodeArtifacts(raw datatypes.JSON) ([]Artifact, error) {
	if len(raw) == 0 {
		return []Artifact{}, nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		a := Artifact{
			Bucket:   pickString(e, "bucket", "storage_bucket", "storageBucket"),
			Path:     pickString(e, "path", "file_path", "filePath", "storage_path", "storagePath"),
			FileName: pickString(e, "file_name", "fileName", "name"),
			MimeType: pickString(e, "mime_type", "mimeType", "type"),
			FileSize: pickInt64(e, "file_size", "fileSize", "size"),
		}
		if ts := pickString(e, "created_at", "createdAt"); ts != "" {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				a.CreatedAt = t
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func pickString(e map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := e[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func pickInt64(e map[string]json.RawMessage, keys ...string) int64 {
	for _, k := range keys {
		raw, ok := e[k]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil && n != 0 {
			return n
		}
	}
	return 0
}
