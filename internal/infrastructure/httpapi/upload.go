package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"bpm-agent/internal/domain/entity"
	"bpm-agent/internal/infrastructure/ocr"
)

const (
	maxUploadSize = 10 << 20
	maxImageWidth = 1600
)

// allowedUploads maps permitted extensions to their content type. Anything
// else is rejected before a byte reaches OCR.
var allowedUploads = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "file too large or malformed upload")
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedUploads[ext]
	if !ok {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q, allowed: jpg, jpeg, png, pdf", ext))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	// PDFs go to OCR untouched; oversized images are downscaled first.
	if contentType != "application/pdf" {
		data, contentType, err = preprocessImage(data)
		if err != nil {
			respondError(w, http.StatusBadRequest, "not a valid image")
			return
		}
	}

	sess := s.ownedSessionByID(w, r, sessionID)
	if sess == nil {
		return
	}

	inv, err := s.extractWithAudit(r, sess, header.Filename, data, contentType)
	if err != nil {
		if errors.Is(err, ocr.ErrUnrecognized) {
			respondError(w, http.StatusUnprocessableEntity, "未能识别文档中的发票信息")
			return
		}
		s.log.Error("ocr failed", "session", sess.ID, "error", err)
		respondError(w, http.StatusBadGateway, "发票识别服务暂时不可用")
		return
	}

	orch, connected := s.registry.Orchestrator(sess.ID)
	if !connected {
		// Recognition worked but there is no live channel to merge into.
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "recognized",
			"fields":  inv.Fields(),
			"message": "识别完成。请连接会话后重新上传，以便自动填写。",
		})
		return
	}

	comp := orch.ProcessInvoice(r.Context(), inv)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  string(comp.Kind),
		"message": comp.Message,
		"actions": comp.Actions,
		"fields":  inv.Fields(),
	})
}

// extractWithAudit runs OCR and, on failure, records the failed task
// itself since no orchestrator turn owns this work yet.
func (s *Server) extractWithAudit(r *http.Request, sess *entity.Session, filename string, data []byte, contentType string) (*entity.Invoice, error) {
	inv, err := s.ocr.ExtractInvoice(r.Context(), data, contentType)
	if err == nil {
		return inv, nil
	}

	now := time.Now()
	rec := &entity.TaskRecord{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		TaskType:  "ocr_processing",
		Status:    entity.TaskStatusOCRFailed,
		InputData: map[string]any{
			"filename":     filename,
			"content_type": contentType,
			"size":         len(data),
		},
		ErrorMessage: err.Error(),
		CreatedAt:    now,
		CompletedAt:  &now,
	}
	if storeErr := s.store.CreateTask(r.Context(), rec); storeErr == nil {
		if storeErr = s.store.FinishTask(r.Context(), rec); storeErr != nil {
			s.log.Warn("finish failed ocr task record", "error", storeErr)
		}
	} else {
		s.log.Warn("create failed ocr task record", "error", storeErr)
	}
	return nil, err
}

// preprocessImage decodes, downscales when wider than maxImageWidth, and
// re-encodes as JPEG.
func preprocessImage(data []byte) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = imaging.Resize(img, maxImageWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
