package handler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"github.com/speak2fill/speak2fill/internal/event"
	"github.com/speak2fill/speak2fill/internal/eventbus"
	"github.com/speak2fill/speak2fill/internal/form"
	"github.com/speak2fill/speak2fill/internal/infer"
	"github.com/speak2fill/speak2fill/internal/ocr"
	"github.com/speak2fill/speak2fill/internal/store"
)

// maxUploadBytes bounds form image uploads.
const maxUploadBytes = 20 << 20

// OCRService extracts text boxes from an image.
type OCRService interface {
	Analyze(ctx context.Context, image []byte) (*ocr.Result, error)
}

// FieldInferrer turns OCR text boxes into a fillable-field list.
type FieldInferrer interface {
	InferFields(ctx context.Context, items []form.OCRItem, imageWidth, imageHeight int) ([]form.Field, error)
}

// AnalyzeHandler creates sessions from uploaded form images.
type AnalyzeHandler struct {
	store store.Store
	ocr   OCRService
	infer FieldInferrer
	bus   *eventbus.Bus
}

// NewAnalyzeHandler creates an AnalyzeHandler. bus may be nil.
func NewAnalyzeHandler(st store.Store, ocrSvc OCRService, inferrer FieldInferrer, bus *eventbus.Bus) *AnalyzeHandler {
	return &AnalyzeHandler{store: st, ocr: ocrSvc, infer: inferrer, bus: bus}
}

// uploadFormResponse is the session-creation wire contract.
type uploadFormResponse struct {
	SessionID   string         `json:"session_id"`
	ImageWidth  int            `json:"image_width"`
	ImageHeight int            `json:"image_height"`
	OCRItems    []form.OCRItem `json:"ocr_items"`
	Fields      []form.Field   `json:"fields"`
}

// AnalyzeForm accepts an image, runs remote OCR, infers fillable fields and
// creates a session. A field list that fails validation rejects the whole
// creation — a corrupt field is never admitted silently.
func (h *AnalyzeHandler) AnalyzeForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "image file is required")
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil || len(imageBytes) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "empty upload")
		return
	}
	if ct := http.DetectContentType(imageBytes); !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "please upload an image file")
		return
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "invalid image data")
		return
	}

	ocrResult, err := h.ocr.Analyze(r.Context(), imageBytes)
	if err != nil {
		if errors.Is(err, ocr.ErrNoText) {
			writeError(w, http.StatusBadRequest, "NO_TEXT", "no text found in image")
			return
		}
		log.Printf("analyze: ocr failed: %v", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "OCR service unavailable, try again")
		return
	}

	// Prefer the dimensions the OCR service measured; fall back to the
	// local decode. All bboxes are interpreted against these forever.
	imageWidth, imageHeight := ocrResult.ImageWidth, ocrResult.ImageHeight
	if imageWidth <= 0 || imageHeight <= 0 {
		imageWidth, imageHeight = cfg.Width, cfg.Height
	}

	confident := ocr.FilterConfident(ocrResult.Items)
	if len(confident) == 0 {
		writeError(w, http.StatusBadRequest, "NO_TEXT", "no high-confidence text found in image")
		return
	}

	fields, err := h.infer.InferFields(r.Context(), confident, imageWidth, imageHeight)
	if err != nil {
		if errors.Is(err, infer.ErrNoFields) {
			writeError(w, http.StatusBadRequest, "NO_FIELDS", "no fillable fields identified")
			return
		}
		log.Printf("analyze: field inference failed: %v", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "field inference unavailable, try again")
		return
	}

	if err := form.ValidateFields(fields, imageWidth, imageHeight); err != nil {
		log.Printf("analyze: rejecting inferred fields: %v", err)
		writeError(w, http.StatusBadGateway, "VALIDATION_ERROR", "inference produced an invalid field: "+err.Error())
		return
	}

	filename := "uploaded_image"
	if header.Filename != "" {
		filename = header.Filename
	}
	language := r.FormValue("language")

	sess := form.NewSession(uuid.New().String(), filename, language, fields, ocrResult.Items, imageWidth, imageHeight)
	if err := h.store.Create(r.Context(), sess, imageBytes); err != nil {
		storeErrorToHTTP(w, err)
		return
	}

	if h.bus != nil {
		h.bus.Publish(r.Context(), event.NewSessionCreated(event.SessionCreatedPayload{
			SessionID:   sess.SessionID,
			FieldCount:  len(fields),
			ImageWidth:  imageWidth,
			ImageHeight: imageHeight,
			Language:    sess.Language,
		}))
	}

	writeJSON(w, http.StatusOK, uploadFormResponse{
		SessionID:   sess.SessionID,
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
		OCRItems:    ocrResult.Items,
		Fields:      fields,
	})
}
