package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/poflow/internal/core"
)

type createWorkflowRequest struct {
	Method core.CreationMethod `json:"method"`
	Flags  core.Flags          `json:"flags"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.service.CreateWorkflow(requestContext(r), req.Method, req.Flags)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Workflow(requestContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRecentWorkflows(w http.ResponseWriter, r *http.Request) {
	refs, err := s.service.RecentWorkflows(requestContext(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteWorkflow(requestContext(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type advanceWorkflowRequest struct {
	Creation *core.CreationData `json:"creation"`
}

// handleAdvanceWorkflow accepts an optional body carrying creation data for
// the create step.
func (s *Server) handleAdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	var req advanceWorkflowRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.service.AdvanceWorkflow(requestContext(r), chi.URLParam(r, "id"), req.Creation)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBackWorkflow(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.BackWorkflow(requestContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type failWorkflowRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleFailWorkflow(w http.ResponseWriter, r *http.Request) {
	var req failWorkflowRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.service.FailWorkflow(requestContext(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRetryWorkflow(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.RetryWorkflow(requestContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	steps, err := s.service.Pipeline(requestContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

type pipelineStatusRequest struct {
	Status core.PipelineStatus `json:"status"`
	Error  string              `json:"error"`
}

func (s *Server) handleSetPipelineStatus(w http.ResponseWriter, r *http.Request) {
	var req pipelineStatusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	step := core.PipelineStepID(chi.URLParam(r, "step"))
	view, err := s.service.SetPipelineStatus(requestContext(r), chi.URLParam(r, "id"), step, req.Status, req.Error)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
