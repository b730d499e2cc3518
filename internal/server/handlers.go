package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
)

// ClaimFileField is the multipart field carrying the claim document
const ClaimFileField = "claim_file"

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable"`
}

// handleDecide accepts a raw ClaimInfo JSON body or a multipart upload and
// returns the run result as JSON.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	res, err := s.decide(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

// handleUpload serves the form post from the index page
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.decide(w, r)
	if err != nil {
		s.renderPage(w, StatusFor(err), pageData{Error: err.Error()})
		return
	}

	decisionHTML, err := s.decisionHTML(res.Decision)
	if err != nil {
		s.renderPage(w, http.StatusInternalServerError, pageData{Error: err.Error()})
		return
	}
	s.renderPage(w, http.StatusOK, pageData{
		Result:   res,
		Decision: decisionHTML,
	})
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) (*pipeline.Result, error) {
	data, err := s.readClaim(w, r)
	if err != nil {
		return nil, err
	}
	claim, err := model.ParseClaimInfo(data)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(r.Context(), *claim)
}

// readClaim returns the uploaded claim document from either a multipart form
// or the raw request body.
func (s *Server) readClaim(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.cfg.MaxUploadBytes
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+4096)
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, fmt.Errorf("%w: parse upload: %w", model.ErrValidation, err)
		}
		file, _, err := r.FormFile(ClaimFileField)
		if err != nil {
			return nil, fmt.Errorf("%w: missing %s upload", model.ErrValidation, ClaimFileField)
		}
		defer func() { _ = file.Close() }()
		return readLimited(file, limit)
	}

	return readLimited(r.Body, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read claim: %w", model.ErrValidation, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: claim document exceeds %d bytes", model.ErrValidation, limit)
	}
	return data, nil
}

// StatusFor maps a run failure to an HTTP status. A caller cancellation
// surfaces wrapped in the kind of the stage it interrupted, so it is checked
// before the kinds; only the run deadline outranks it.
func StatusFor(err error) int {
	if errors.Is(err, model.ErrTimeout) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	switch model.Kind(err) {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrRetrieval, model.ErrInference, model.ErrSchemaValidation:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Error:     err.Error(),
		Retryable: model.IsRetryable(err),
	}
	status := StatusFor(err)
	if kind := model.Kind(err); kind != nil {
		resp.Kind = kind.Error()
	}
	if status == http.StatusServiceUnavailable {
		resp.Kind = context.Canceled.Error()
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = string(stageErr.Stage)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
