package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aulalink/aulalink-backend/internal/annotation"
	"github.com/aulalink/aulalink-backend/internal/annotation/annoterr"
	"github.com/aulalink/aulalink-backend/internal/annotation/canvas"
	repos "github.com/aulalink/aulalink-backend/internal/data/repos/grading"
	types "github.com/aulalink/aulalink-backend/internal/domain"
	"github.com/aulalink/aulalink-backend/internal/http/response"
	"github.com/aulalink/aulalink-backend/internal/platform/dbctx"
	"github.com/aulalink/aulalink-backend/internal/platform/logger"
	"github.com/aulalink/aulalink-backend/internal/services"
)

type AnnotationHandler struct {
	log            *logger.Logger
	annotations    services.AnnotationService
	submissionRepo repos.SubmissionRepo
}

func NewAnnotationHandler(
	log *logger.Logger,
	annotations services.AnnotationService,
	submissionRepo repos.SubmissionRepo,
) *AnnotationHandler {
	return &AnnotationHandler{
		log:            log.With("handler", "AnnotationHandler"),
		annotations:    annotations,
		submissionRepo: submissionRepo,
	}
}

type openSessionRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

type pageInfo struct {
	Number int `json:"number"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type sessionResponse struct {
	SessionID string   `json:"session_id"`
	PageCount int      `json:"page_count"`
	Page      pageInfo `json:"page"`
}

// OpenSession loads a submission's PDF and mounts an editing session.
func (h *AnnotationHandler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	submissionID, err := uuid.Parse(req.SubmissionID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	es, err := h.annotations.Open(dbc, submissionID)
	if err != nil {
		respondAnnotationError(c, err)
		return
	}

	var resp sessionResponse
	_ = es.With(func(sess *annotation.Session) error {
		rp := sess.BasePage()
		resp = sessionResponse{
			SessionID: es.ID.String(),
			PageCount: sess.PageCount(),
			Page:      pageInfo{Number: rp.PageNumber, Width: rp.Width, Height: rp.Height},
		}
		return nil
	})
	response.RespondOK(c, resp)
}

type gotoPageRequest struct {
	Page int `json:"page" binding:"required"`
}

// GoToPage switches the active page; the page being left is flushed to
// the overlay store before the switch.
func (h *AnnotationHandler) GoToPage(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	var req gotoPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	var resp pageInfo
	err := es.With(func(sess *annotation.Session) error {
		if err := sess.GoToPage(req.Page); err != nil {
			return err
		}
		rp := sess.BasePage()
		resp = pageInfo{Number: rp.PageNumber, Width: rp.Width, Height: rp.Height}
		return nil
	})
	if err != nil {
		respondAnnotationError(c, err)
		return
	}
	response.RespondOK(c, resp)
}

// PageImage streams the rendered base page as PNG.
func (h *AnnotationHandler) PageImage(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := es.With(func(sess *annotation.Session) error {
		return png.Encode(&buf, sess.BasePage().Image)
	})
	if err != nil {
		respondAnnotationError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type strokePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type strokeRequest struct {
	Tool   string        `json:"tool"`
	Color  string        `json:"color"`
	Width  float64       `json:"width"`
	Points []strokePoint `json:"points" binding:"required"`
}

// Stroke replays one pen or eraser gesture: pointer-down at the first
// point, moves through the rest, pointer-up at the end.
func (h *AnnotationHandler) Stroke(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	var req strokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Points) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_stroke", fmt.Errorf("at least one point required"))
		return
	}

	err := es.With(func(sess *annotation.Session) error {
		if err := applyToolConfig(sess, req.Tool, req.Color, req.Width); err != nil {
			return err
		}
		sess.PointerDown(req.Points[0].X, req.Points[0].Y)
		for _, p := range req.Points[1:] {
			sess.PointerMove(p.X, p.Y)
		}
		sess.PointerUp()
		return nil
	})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_stroke", err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type textRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value string  `json:"value"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Text places a committed text annotation at the anchor point.
func (h *AnnotationHandler) Text(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	err := es.With(func(sess *annotation.Session) error {
		if err := applyToolConfig(sess, string(canvas.ToolText), req.Color, req.Width); err != nil {
			return err
		}
		sess.PointerDown(req.X, req.Y)
		sess.TextInput(req.Value)
		sess.CommitText()
		return nil
	})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_text", err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// ClearPage wipes the active page's overlay entirely.
func (h *AnnotationHandler) ClearPage(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	_ = es.With(func(sess *annotation.Session) error {
		sess.ClearPage()
		return nil
	})
	response.RespondOK(c, gin.H{"ok": true})
}

// Save flattens and uploads the annotated PDF, replacing any prior
// artifact on the grading record. Returns a boolean success indicator;
// a save requested while one is running is rejected, not queued.
func (h *AnnotationHandler) Save(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	artifact, err := h.annotations.Save(dbc, es.ID)
	if err != nil {
		respondAnnotationError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true, "artifact": artifact})
}

// CloseSession discards the in-memory session; overlays not exported
// are gone.
func (h *AnnotationHandler) CloseSession(c *gin.Context) {
	es, ok := h.session(c)
	if !ok {
		return
	}
	h.annotations.Close(es.ID)
	response.RespondOK(c, gin.H{"ok": true})
}

// SubmissionArtifacts returns the submission's current artifact list in
// canonical form, whatever naming convention the stored rows used.
func (h *AnnotationHandler) SubmissionArtifacts(c *gin.Context) {
	submissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	sub, err := h.submissionRepo.GetByID(dbc, submissionID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "submission_not_found", err)
		return
	}
	artifacts, err := types.DecodeArtifacts(sub.Artifacts)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "invalid_artifact_list", err)
		return
	}
	response.RespondOK(c, gin.H{"artifacts": artifacts})
}

func (h *AnnotationHandler) session(c *gin.Context) (*services.EditorSession, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return nil, false
	}
	es, ok := h.annotations.Get(sessionID)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "session_not_found", fmt.Errorf("unknown session %s", sessionID))
		return nil, false
	}
	return es, true
}

func applyToolConfig(sess *annotation.Session, tool, hexColor string, width float64) error {
	cfg := sess.Config()
	switch canvas.Tool(tool) {
	case canvas.ToolPen, canvas.ToolEraser, canvas.ToolText:
		cfg.Tool = canvas.Tool(tool)
	case "":
		// keep current tool
	default:
		return fmt.Errorf("unknown tool %q", tool)
	}
	if hexColor != "" {
		c, err := parseHexColor(hexColor)
		if err != nil {
			return err
		}
		cfg.Color = c
	}
	if width > 0 {
		cfg.StrokeWidth = width
	}
	return nil
}

func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected 6 hex chars, got %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xFF}, nil
}

func respondAnnotationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, annoterr.ErrExportInFlight):
		response.RespondError(c, http.StatusConflict, "export_in_flight", err)
	case errors.Is(err, annoterr.ErrLoad):
		response.RespondError(c, http.StatusUnprocessableEntity, "pdf_load_failed", err)
	case errors.Is(err, annoterr.ErrRender):
		response.RespondError(c, http.StatusUnprocessableEntity, "page_render_failed", err)
	case errors.Is(err, annoterr.ErrEncoding):
		response.RespondError(c, http.StatusInternalServerError, "annotation_encoding_failed", err)
	case errors.Is(err, annoterr.ErrStorage):
		response.RespondError(c, http.StatusBadGateway, "artifact_storage_failed", err)
	case errors.Is(err, annoterr.ErrPersistence):
		response.RespondError(c, http.StatusInternalServerError, "grading_record_update_failed", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
