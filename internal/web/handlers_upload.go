package web

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/poflow/internal/core"
)

// multipartMemory is the in-memory part of a multipart upload; the rest is
// spooled to disk by net/http.
const multipartMemory = 32 << 20

// formFile extracts the "file" part of a multipart upload bounded by the
// configured maximum size.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, nil, core.ErrFileTooLarge
		}
		return nil, nil, core.ErrNoFile
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, core.ErrNoFile
	}
	if header.Size > maxSize {
		file.Close()
		return nil, nil, core.ErrFileTooLarge
	}
	return file, header, nil
}

// handleValidateUpload validates a workbook and opens a correction session.
func (s *Server) handleValidateUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.formFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	report, err := s.service.ValidateUpload(requestContext(r), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if report.SessionID != "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, report)
}

// handleQuickValidate checks sheet presence and row count only.
func (s *Server) handleQuickValidate(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.formFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	check, err := s.service.QuickValidate(requestContext(r), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.UploadStatus())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Session(requestContext(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportSession downloads the session's rows, corrections included,
// as a workbook. The file is built in memory first so failures still get a
// JSON error.
func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var buf bytes.Buffer
	if err := s.service.ExportSession(requestContext(r), id, &buf); err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

type applySuggestionsRequest struct {
	IDs []string `json:"ids"`
}

// handleApplySuggestions applies the selected suggestions and re-validates.
func (s *Server) handleApplySuggestions(w http.ResponseWriter, r *http.Request) {
	var req applySuggestionsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	report, err := s.service.ApplySuggestions(requestContext(r), chi.URLParam(r, "sessionID"), req.IDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleFinalize turns a valid session into stored purchase orders.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Finalize(requestContext(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
