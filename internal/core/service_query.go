package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrPDFDisabled is returned by PDF operations when no store is configured.
var ErrPDFDisabled = errors.New("pdf storage not configured")

// Workflow returns a stored workflow with its progress.
func (s *Service) Workflow(ctx context.Context, id string) (*WorkflowView, error) {
	w, err := s.loadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return viewOf(w), nil
}

// Pipeline returns the processing plan of a workflow.
func (s *Service) Pipeline(ctx context.Context, id string) ([]ProcessingStep, error) {
	w, err := s.loadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.Pipeline, nil
}

// RecentWorkflows returns the most recently saved workflows, newest first.
func (s *Service) RecentWorkflows(ctx context.Context) ([]WorkflowRef, error) {
	refs, err := s.workflows.RecentWorkflows(ctx, RecentWorkflowLimit)
	if err != nil {
		return nil, fmt.Errorf("recent workflows: %w", err)
	}
	if refs == nil {
		refs = []WorkflowRef{}
	}
	return refs, nil
}

// PDFStats sums the managed PDF directories.
func (s *Service) PDFStats(ctx context.Context) (StorageStats, error) {
	if s.pdf == nil {
		return StorageStats{}, ErrPDFDisabled
	}
	return s.pdf.Stats()
}

// ListPDFs lists one PDF directory.
func (s *Service) ListPDFs(ctx context.Context, kind PDFKind) ([]PDFFileInfo, error) {
	if s.pdf == nil {
		return nil, ErrPDFDisabled
	}
	return s.pdf.List(kind)
}

// CleanupPDFs evicts temp PDFs with opts.
func (s *Service) CleanupPDFs(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if s.pdf == nil {
		return CleanupResult{}, ErrPDFDisabled
	}
	res, err := s.pdf.CleanupTemp(ctx, opts)
	if err != nil {
		return res, err
	}
	if !res.DryRun {
		s.observer.PDFCleaned(res.Cleaned, res.Freed)
	}
	return res, nil
}

// ArchivePDF copies a file from the temp directory into the archive. name
// must be a bare file name; anything with a path component is rejected.
func (s *Service) ArchivePDF(ctx context.Context, name, orderNumber, vendorName string) (PDFFileInfo, error) {
	if s.pdf == nil {
		return PDFFileInfo{}, ErrPDFDisabled
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return PDFFileInfo{}, fmt.Errorf("%w: %q", ErrSourceMissing, name)
	}
	dst, err := s.pdf.Archive(ctx, filepath.Join(s.pdf.Dirs().Temp, name), orderNumber, vendorName)
	if err != nil {
		return PDFFileInfo{}, err
	}
	return s.pdf.Describe(PDFArchive, dst)
}

// StartPDFMaintenance runs scheduled PDF cleanup until ctx is cancelled.
// It returns immediately when no store is configured.
func (s *Service) StartPDFMaintenance(ctx context.Context, interval time.Duration) {
	if s.pdf == nil {
		return
	}
	StartPDFMaintenance(ctx, s.pdf, interval, func(res CleanupResult) {
		s.observer.PDFCleaned(res.Cleaned, res.Freed)
	})
}
