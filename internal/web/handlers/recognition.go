package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// RecognitionHandler handles enroll, identify and verify.
type RecognitionHandler struct {
	service FaceService
	logger  *zap.Logger
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(service FaceService, logger *zap.Logger) *RecognitionHandler {
	return &RecognitionHandler{service: service, logger: logger}
}

// Enroll handles multipart enrollment: identity_id, optional attributes (JSON object),
// optional replace flag and one or more "photos" files.
func (h *RecognitionHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	identityID := r.FormValue("identity_id")
	if identityID == "" {
		respondError(w, http.StatusBadRequest, "identity_id is required")
		return
	}

	metadata, err := parseAttributes(r.FormValue("attributes"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	replace := false
	if v := r.FormValue("replace"); v != "" {
		if replace, err = strconv.ParseBool(v); err != nil {
			respondError(w, http.StatusBadRequest, "replace must be a boolean")
			return
		}
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "at least one photo is required")
		return
	}
	if len(files) > constants.MaxEnrollPhotos {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d photos are accepted", constants.MaxEnrollPhotos))
		return
	}

	photos := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readUploadedFile(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		photos = append(photos, data)
	}

	res := h.service.Enroll(r.Context(), pipeline.EnrollRequest{
		IdentityID: identityID,
		Photos:     photos,
		Metadata:   metadata,
		Replace:    replace,
	})
	if !res.Success {
		h.logger.Info("enrollment rejected",
			zap.String("identity_id", sanitizeForLog(identityID)),
			zap.String("reason", res.FailureReason),
		)
		respondJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// Identify handles a multipart "photo" upload with optional top_k and threshold fields.
func (h *RecognitionHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	photo, err := formPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := h.service.Options()
	topK := opts.TopK
	if v := r.FormValue("top_k"); v != "" {
		topK, err = strconv.Atoi(v)
		if err != nil || topK < 1 || topK > constants.MaxTopK {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", constants.MaxTopK))
			return
		}
	}
	threshold := opts.Threshold
	if v := r.FormValue("threshold"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil || threshold < -1 || threshold > 1 {
			respondError(w, http.StatusBadRequest, "threshold must be a number between -1 and 1")
			return
		}
	}

	respondJSON(w, http.StatusOK, h.service.Identify(r.Context(), photo, topK, threshold))
}

// Verify handles a multipart "photo" upload checked against identity_id.
func (h *RecognitionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	identityID := r.FormValue("identity_id")
	if identityID == "" {
		respondError(w, http.StatusBadRequest, "identity_id is required")
		return
	}
	photo, err := formPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.service.Verify(r.Context(), photo, identityID))
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	return r.ParseMultipartForm(constants.MaxUploadBytes)
}

// parseAttributes decodes the optional attributes JSON object into typed metadata.
func parseAttributes(raw string) (database.Metadata, error) {
	if raw == "" {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, errors.New("attributes must be a JSON object")
	}
	md, err := database.MetadataFromAny(attrs)
	if err != nil {
		return nil, fmt.Errorf("invalid attributes: %w", err)
	}
	return md, nil
}

func formPhoto(r *http.Request) ([]byte, error) {
	files := r.MultipartForm.File["photo"]
	if len(files) != 1 {
		return nil, errors.New("exactly one photo is required")
	}
	return readUploadedFile(files[0])
}

func readUploadedFile(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s", fh.Filename)
	}
	return data, nil
}
