package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/logging"
	"github.com/JonMunkholm/loglens/internal/upload"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// multipartOverhead allows for form fields and boundaries on top of the
// file itself.
const multipartOverhead = 1 << 20

// uploadResponse describes a session and its pending detection.
type uploadResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	State     upload.State      `json:"state"`
	Detection *upload.Detection `json:"detection,omitempty"`
}

// resultResponse is returned when a result has been stored.
type resultResponse struct {
	Result core.NormalizedResult `json:"result"`
	Notice core.Notice           `json:"notice"`
}

type schemaRequest struct {
	Schema string `json:"schema"`
}

// handleCreateUpload decodes and classifies a file in a new session. The
// session then waits for the schema to be confirmed.
func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	raw, requested, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	id, ctrl, err := s.deps.Sessions.Create()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	det, err := ctrl.SubmitFile(r.Context(), raw, requested)
	if err != nil {
		_ = s.deps.Sessions.Remove(id)
		respondError(w, r, err, 0)
		return
	}

	logging.FromContext(r.Context()).Info("upload awaiting confirmation",
		"session_id", id,
		"file", det.FileName,
		"detected", det.Detected,
	)
	writeJSON(w, http.StatusCreated, uploadResponse{SessionID: id, State: ctrl.State(), Detection: &det})
}

// handleGetUpload reports the state of a session.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id, ctrl, err := s.session(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	resp := uploadResponse{SessionID: id, State: ctrl.State()}
	if det, ok := ctrl.Pending(); ok {
		resp.Detection = &det
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleOverrideSchema changes the selected schema before confirmation.
func (s *Server) handleOverrideSchema(w http.ResponseWriter, r *http.Request) {
	id, ctrl, err := s.session(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	req, err := decodeSchemaRequest(r, true)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	label, err := core.ParseLabel(req.Schema)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	det, err := ctrl.Override(label)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{SessionID: id, State: ctrl.State(), Detection: &det})
}

// handleConfirmUpload submits the pending file for analysis. The session
// ends whether or not the submission succeeds.
func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	id, ctrl, err := s.session(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	req, err := decodeSchemaRequest(r, false)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	var label core.SchemaLabel
	if req.Schema != "" {
		if label, err = core.ParseLabel(req.Schema); err != nil {
			respondError(w, r, err, 0)
			return
		}
	}

	res, err := ctrl.Confirm(r.Context(), label)
	if ctrl.State() == upload.StateIdle {
		_ = s.deps.Sessions.Remove(id)
	}
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, resultResponse{Result: res, Notice: core.SuccessNotice})
}

// handleCancelUpload drops the pending file and ends the session.
func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "sessionID")
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if err := s.deps.Sessions.Remove(id); err != nil {
		respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAnalyze runs decode, classification and submission in one request.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	raw, requested, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	id, ctrl, err := s.deps.Sessions.Create()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	defer func() { _ = s.deps.Sessions.Remove(id) }()

	res, err := ctrl.Run(r.Context(), raw, requested)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, resultResponse{Result: res, Notice: core.SuccessNotice})
}

// session resolves the {sessionID} path parameter.
func (s *Server) session(r *http.Request) (uuid.UUID, *upload.Controller, error) {
	id, err := parseID(r, "sessionID")
	if err != nil {
		return uuid.Nil, nil, err
	}
	ctrl, err := s.deps.Sessions.Get(id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, ctrl, nil
}

// readUpload reads the multipart "file" and optional "schema" fields. A
// missing file yields a nil upload, which the controller rejects.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*core.RawUpload, core.SchemaLabel, error) {
	const op = "read upload"

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, "", &core.Error{Kind: core.KindDecode, Op: op,
				Err: fmt.Errorf("file too large: limit is %d bytes: %w", s.cfg.Upload.MaxFileSize, err)}
		}
		return nil, "", core.NewValidationError(op, "no file: expected a multipart form with a file field")
	}

	requested := core.LabelAuto
	if v := r.FormValue("schema"); v != "" {
		label, err := core.ParseLabel(v)
		if err != nil {
			return nil, "", err
		}
		requested = label
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, requested, nil
	}
	if err != nil {
		return nil, "", core.NewDecodeError(op, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", core.NewDecodeError(op, err)
	}

	return &core.RawUpload{
		FileName:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	}, requested, nil
}

// decodeSchemaRequest reads {"schema": "..."}. An empty body is allowed
// unless required.
func decodeSchemaRequest(r *http.Request, required bool) (schemaRequest, error) {
	const op = "decode schema request"

	var req schemaRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
		if required {
			return req, core.NewValidationError(op, "no log type selected")
		}
		return req, nil
	case err != nil:
		return req, core.NewValidationError(op, "invalid JSON body")
	}
	return req, nil
}
