package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"sampleflow/internal/api/middleware"
	"sampleflow/internal/core"
	"sampleflow/pkg/domain"
)

func (h *Handler) adminSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.CurrentSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) adminSettingsHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.SettingsHistory(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": history})
}

func (h *Handler) adminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, err)
			return
		}
		if !errors.Is(err, io.EOF) {
			h.writeError(w, r, domain.ValidationError{Message: "Invalid JSON body"})
			return
		}
	}
	message, err := h.svc.UpdateSettings(r.Context(), user.Email, values)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) adminSamples(w http.ResponseWriter, r *http.Request) {
	lists, err := h.svc.GetSamples(r.Context(), "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *Handler) adminZipSamples(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	h.logger.Info("sample bundle requested", "admin", user.Email)
	download, err := h.svc.ZipSamples(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendDownload(w, r, download)
}

func (h *Handler) adminResult(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(r); err != nil {
		h.writeError(w, r, err)
		return
	}
	primaryKey := r.FormValue("primary_key")
	var success bool
	switch strings.ToLower(r.FormValue("success")) {
	case "true":
		success = true
	case "false":
	default:
		writeMessage(w, http.StatusBadRequest, "Missing key: success=True/False")
		return
	}
	files, err := readFormFiles(r.MultipartForm, "file")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var archive *core.ResultArchive
	if len(files) > 0 {
		archive = &core.ResultArchive{Filename: files[0].filename, Data: files[0].data}
	}
	if success && archive == nil {
		writeMessage(w, http.StatusBadRequest, "Result has success=True but no file")
		return
	}
	message, err := h.svc.ProcessResult(r.Context(), primaryKey, success, archive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) adminResubmit(w http.ResponseWriter, r *http.Request) {
	var req primaryKeyRequest
	if err := decodeJSON(r, &req, primaryKeyMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	message, err := h.svc.ResubmitSample(r.Context(), req.PrimaryKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}
