// Package httpapi exposes the lifecycle manager over HTTP for test clients
// running in other processes: provision, reset, and validate per worker.
// Every mutating request must carry the shared reset token; a server
// without a token refuses to start, so an unprotected endpoint can never
// come up by accident.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/burrow/internal/validate"
	"github.com/mesh-intelligence/burrow/pkg/harness"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// TokenHeader carries the shared reset secret.
const TokenHeader = "X-Burrow-Token"

// ErrTokenMissing is returned by New when no shared secret is configured.
var ErrTokenMissing = errors.New("reset token must be configured")

// Server handles the test-harness HTTP surface.
type Server struct {
	mgr   *harness.Manager
	token string
	log   *logrus.Entry
	mux   *http.ServeMux
}

// New builds a Server around the manager. The token is a fatal-if-missing
// precondition, not an option.
func New(mgr *harness.Manager, token string, log *logrus.Entry) (*Server, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{mgr: mgr, token: token, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /provision", s.auth(s.handleProvision))
	s.mux.HandleFunc("POST /reset", s.auth(s.handleReset))
	s.mux.HandleFunc("GET /validate", s.auth(s.handleValidate))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s, nil
}

// Handler returns the routing handler, for mounting or for httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe runs the server with conservative timeouts.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	s.log.WithField("addr", addr).Info("harness API listening")
	return srv.ListenAndServe()
}

// auth rejects requests whose token header does not match the shared
// secret. Constant-time comparison.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TokenHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid reset token")
			return
		}
		next(w, r)
	}
}

type provisionRequest struct {
	WorkerIndex int `json:"workerIndex"`
}

type provisionResponse struct {
	WorkerIndex   int    `json:"workerIndex"`
	StoreLocation string `json:"storeLocation"`
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	slot, err := s.mgr.Provision(r.Context(), req.WorkerIndex)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, provisionResponse{
		WorkerIndex:   slot.WorkerIndex,
		StoreLocation: slot.Location,
	})
}

type resetRequest struct {
	WorkerIndex    int  `json:"workerIndex"`
	PreserveSchema bool `json:"preserveSchema"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var outcome types.ResetOutcome
	var err error
	if req.PreserveSchema {
		outcome, err = s.mgr.Reset(r.Context(), req.WorkerIndex, s.mgr.PreserveSeed())
	} else {
		outcome, err = s.mgr.Recreate(r.Context(), req.WorkerIndex)
	}
	if err != nil {
		s.log.WithError(err).WithField("worker", req.WorkerIndex).Warn("reset request failed")
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	workerIndex, err := strconv.Atoi(r.URL.Query().Get("workerIndex"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "workerIndex must be an integer")
		return
	}
	result, err := s.mgr.Validate(r.Context(), workerIndex, validate.TypePreTest)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeOperationError maps manager errors onto HTTP statuses.
func (s *Server) writeOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrWorkerUnknown):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrRegistryExhausted):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrManagerClosed), errors.Is(err, types.ErrSlotDisposed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, types.ErrLockTimeout):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
