package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"sampleflow/internal/api/middleware"
	"sampleflow/internal/core"
	"sampleflow/pkg/domain"
)

func (h *Handler) remaining(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.RemainingSamples(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) runningOptions(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.CurrentSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running_options": settings.RunningOptions})
}

func (h *Handler) samples(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	lists, err := h.svc.GetSamples(r.Context(), user.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *Handler) addSample(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	if err := h.parseMultipart(r); err != nil {
		h.writeError(w, r, err)
		return
	}
	concentration := 0
	if raw := strings.TrimSpace(r.FormValue("concentration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, domain.ValidationError{Message: fmt.Sprintf("Invalid concentration '%s'", raw)})
			return
		}
		concentration = n
	}
	files, err := readFormFiles(r.MultipartForm, "file")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	refs := make([]core.ReferenceFile, 0, len(files))
	for _, f := range files {
		refs = append(refs, core.ReferenceFile{Filename: f.filename, Data: f.data})
	}
	sample, err := h.svc.AddSample(r.Context(), core.NewSample{
		Email:         user.Email,
		Name:          r.FormValue("name"),
		RunningOption: r.FormValue("running_option"),
		Concentration: concentration,
		References:    refs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sample": sample})
}

func (h *Handler) referenceSequence(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	var req primaryKeyRequest
	if err := decodeJSON(r, &req, primaryKeyMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	download, err := h.svc.ReferenceSequence(r.Context(), user, req.PrimaryKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendDownload(w, r, download)
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	var req resultFileRequest
	if err := decodeJSON(r, &req, primaryKeyMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	download, err := h.svc.ResultFile(r.Context(), user, req.PrimaryKey, req.Filetype)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendDownload(w, r, download)
}

func (h *Handler) parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return domain.ValidationError{Message: "Invalid multipart form"}
	}
	return nil
}

type formFile struct {
	filename string
	data     []byte
}

func readFormFiles(form *multipart.Form, field string) ([]formFile, error) {
	if form == nil {
		return nil, nil
	}
	var out []formFile
	for _, header := range form.File[field] {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
		}
		out = append(out, formFile{filename: header.Filename, data: data})
	}
	return out, nil
}

// sendDownload streams d as an attachment and closes its body. Presigned
// downloads are answered with a redirect to the blob store.
func (h *Handler) sendDownload(w http.ResponseWriter, r *http.Request, d core.Download) {
	if d.URL != "" {
		http.Redirect(w, r, d.URL, http.StatusTemporaryRedirect)
		return
	}
	defer func() { _ = d.Body.Close() }()
	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	if d.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil {
		h.logger.Warn("download interrupted", "file", d.Filename, "request_id", middleware.RequestIDFromContext(r.Context()), "error", err)
	}
}
