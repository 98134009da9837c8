package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gitlab.ozon.dev/qwestard/laundry/internal/auth"
	"gitlab.ozon.dev/qwestard/laundry/internal/config"
	"gitlab.ozon.dev/qwestard/laundry/internal/middleware"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	"gitlab.ozon.dev/qwestard/laundry/internal/service"
)

type LaundryService interface {
	CreateRequest(ctx context.Context, actor models.User, in service.CreateRequestInput) (*models.Request, error)
	AcceptRequest(ctx context.Context, actor models.User, id string) (*models.Request, error)
	AdvanceStatus(ctx context.Context, actor models.User, id string) (*models.Request, error)
	SetStatus(ctx context.Context, actor models.User, id string, target models.Status) (*models.Request, error)
	GetRequest(ctx context.Context, actor models.User, id string) (*models.Request, error)
	AvailableRequests(ctx context.Context) ([]*models.Request, error)
	ProviderJobs(ctx context.Context, providerID string) ([]*models.Request, error)
	CustomerRequests(ctx context.Context, customerID string) ([]*models.Request, error)
}

type Authenticator interface {
	middleware.IdentityResolver
	StartSession(role models.Role, form auth.Form) (models.User, string, error)
}

type Server struct {
	svc     LaundryService
	auth    Authenticator
	auditor middleware.Auditor
	addr    string
}

// NewServer wires the handlers. auditor may be nil.
func NewServer(svc LaundryService, authenticator Authenticator, auditor middleware.Auditor, cfg *config.Config) *Server {
	return &Server{
		svc:     svc,
		auth:    authenticator,
		auditor: auditor,
		addr:    cfg.Addr(),
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handleWith(mux, "/sessions", s.handleSessions,
		[]string{"POST"}, nil,
	)

	s.handleWith(mux, "/requests", s.handleRequests,
		[]string{"POST"}, []string{"GET", "POST"},
	)

	s.handleWith(mux, "/requests/", s.handleRequestOne,
		[]string{"POST"}, []string{"GET", "POST"},
	)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listen on %s...", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleWith(mux *http.ServeMux, path string,
	handlerFunc http.HandlerFunc,
	logMethods []string, authMethods []string,
) {
	finalHandler := middleware.LogMiddleware(s.auditor, logMethods...)(
		middleware.AuthMiddleware(s.auth, authMethods...)(
			handlerFunc,
		),
	)
	mux.Handle(path, finalHandler)
}

type sessionRequest struct {
	Role models.Role `json:"role"`
	auth.Form
}

type sessionResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad JSON")
		return
	}
	u, token, err := s.auth.StartSession(req.Role, req.Form)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{User: u, Token: token})
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRequest(w, r)
	case http.MethodGet:
		s.handleListRequests(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRequestOne serves /requests/{id}, /requests/{id}/accept and /requests/{id}/status.
func (s *Server) handleRequestOne(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/requests/"), "/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing ID")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	} else if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetRequest(w, r, id)
	case action == "accept" && r.Method == http.MethodPost:
		s.handleAccept(w, r, id)
	case action == "status" && r.Method == http.MethodPost:
		s.handleStatus(w, r, id)
	case action == "" || action == "accept" || action == "status":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserFrom(r.Context())
	var in service.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad JSON")
		return
	}
	req, err := s.svc.CreateRequest(r.Context(), actor, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserFrom(r.Context())
	q := r.URL.Query()

	view := q.Get("view")
	if role := q.Get("role"); role != "" {
		if models.Role(role) != actor.Role {
			writeError(w, http.StatusForbidden, "role does not match the signed-in user")
			return
		}
		if userID := q.Get("userId"); userID != "" && userID != actor.ID {
			writeError(w, http.StatusForbidden, "cannot list requests of another user")
			return
		}
		if view == "" {
			view = "mine"
			if actor.Role == models.RoleProvider {
				view = "jobs"
			}
		}
	}
	if view == "" {
		view = "mine"
		if actor.Role == models.RoleProvider {
			view = "available"
		}
	}

	var (
		list []*models.Request
		err  error
	)
	switch {
	case view == "available" && actor.Role == models.RoleProvider:
		list, err = s.svc.AvailableRequests(r.Context())
	case view == "jobs" && actor.Role == models.RoleProvider:
		list, err = s.svc.ProviderJobs(r.Context(), actor.ID)
	case view == "mine" && actor.Role == models.RoleCustomer:
		list, err = s.svc.CustomerRequests(r.Context(), actor.ID)
	default:
		writeError(w, http.StatusBadRequest, "view "+view+" is not available for "+string(actor.Role))
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request, id string) {
	actor, _ := middleware.UserFrom(r.Context())
	req, err := s.svc.GetRequest(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, id string) {
	actor, _ := middleware.UserFrom(r.Context())
	req, err := s.svc.AcceptRequest(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type statusRequest struct {
	Status models.Status `json:"status"`
}

// handleStatus advances to the next status, or to the one in the body if it is the next one.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	actor, _ := middleware.UserFrom(r.Context())
	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad JSON")
		return
	}

	var (
		req *models.Request
		err error
	)
	if body.Status == "" {
		req, err = s.svc.AdvanceStatus(r.Context(), actor, id)
	} else {
		req, err = s.svc.SetStatus(r.Context(), actor, id, body.Status)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
