package web

import (
	"net/http"

	"github.com/JonMunkholm/poflow/internal/core"
)

type validateVendorsRequest struct {
	VendorName   string `json:"vendorName"`
	DeliveryName string `json:"deliveryName"`
}

// handleValidateVendors matches a buyer and an optional delivery place.
func (s *Server) handleValidateVendors(w http.ResponseWriter, r *http.Request) {
	var req validateVendorsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	check, err := s.service.ValidateVendors(requestContext(r), req.VendorName, req.DeliveryName)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type matchVendorRequest struct {
	Name      string          `json:"name"`
	Type      core.VendorType `json:"type"`
	Threshold float64         `json:"threshold"`
}

// handleMatchVendor matches one name against vendors of one type. A zero
// threshold uses the configured one.
func (s *Server) handleMatchVendor(w http.ResponseWriter, r *http.Request) {
	var req matchVendorRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	match, err := s.service.ValidateVendor(requestContext(r), req.Name, req.Type, req.Threshold)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (s *Server) handleRegisterVendor(w http.ResponseWriter, r *http.Request) {
	var in core.VendorInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		respondError(w, r, err)
		return
	}

	v, err := s.service.RegisterVendor(requestContext(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleRegisterVendors registers each entry independently. Partial
// failure is reported in the body with 207.
func (s *Server) handleRegisterVendors(w http.ResponseWriter, r *http.Request) {
	var inputs []core.VendorInput
	if err := decodeJSON(w, r, &inputs, false); err != nil {
		respondError(w, r, err)
		return
	}

	result := s.service.RegisterVendors(requestContext(r), inputs)
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

type emailConflictRequest struct {
	VendorName string `json:"vendorName"`
	Email      string `json:"email"`
}

func (s *Server) handleEmailConflict(w http.ResponseWriter, r *http.Request) {
	var req emailConflictRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	out, err := s.service.CheckEmailConflict(requestContext(r), req.VendorName, req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
