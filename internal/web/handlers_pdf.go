package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/poflow/internal/core"
)

func (s *Server) handlePDFStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.PDFStats(requestContext(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParsePDFKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	files, err := s.service.ListPDFs(requestContext(r), kind)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// cleanupRequest overrides parts of the default policy. Durations are in
// hours and sizes in MiB to match the operator UI.
type cleanupRequest struct {
	MaxAgeHours float64 `json:"maxAgeHours"`
	MaxSizeMB   int64   `json:"maxSizeMB"`
	KeepRecent  int     `json:"keepRecent"`
	DryRun      bool    `json:"dryRun"`
}

func (req cleanupRequest) options() core.CleanupOptions {
	opts := core.CleanupOptions{KeepRecent: req.KeepRecent, DryRun: req.DryRun}
	if req.MaxAgeHours > 0 {
		opts.MaxAge = hours(req.MaxAgeHours)
	}
	if req.MaxSizeMB > 0 {
		opts.MaxSize = req.MaxSizeMB * 1024 * 1024
	}
	return opts
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func (s *Server) handlePDFCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.service.CleanupPDFs(requestContext(r), req.options())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type archiveRequest struct {
	FileName    string `json:"fileName"`
	OrderNumber string `json:"orderNumber"`
	VendorName  string `json:"vendorName"`
}

// handlePDFArchive copies a generated PDF from the temp directory into the
// archive.
func (s *Server) handlePDFArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	info, err := s.service.ArchivePDF(requestContext(r), req.FileName, req.OrderNumber, req.VendorName)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}
