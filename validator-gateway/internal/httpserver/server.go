package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/auth"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/config"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/service"
)

const (
	codeValidation  = "GATEWAY_VALIDATION"
	codeUnreachable = "GATEWAY_UPSTREAM_UNREACHABLE"
	codeMalformed   = "GATEWAY_UPSTREAM_MALFORMED"
	codeInternal    = "GATEWAY_INTERNAL"
	codeAuth        = "GATEWAY_AUTH"
	codeNotFound    = "GATEWAY_NOT_FOUND"
	codeTooLarge    = "GATEWAY_TOO_LARGE"

	msgForwardFailed = "Failed to forward the request"
	msgInternal      = "Internal Server Error"

	smallBodyLimit    = 64 * 1024
	multipartMemLimit = 32 << 20
)

type Server struct {
	cfg      config.Config
	svc      *service.Service
	registry *keys.Registry
	verifier *auth.Verifier
	validate *validator.Validate
}

// New builds the HTTP surface. verifier is only consulted when
// cfg.RequireCredentialToken is set.
func New(cfg config.Config, svc *service.Service, registry *keys.Registry, verifier *auth.Verifier) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		registry: registry,
		verifier: verifier,
		validate: newValidator(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/keys", s.registry.StatusHandler())
	r.Get("/audit/{id}", s.handleGetAuditEvent)

	r.Post("/get_credentials", s.handleGetCredentials)
	r.Post("/checkimage", s.handleCheckImage)

	r.Group(func(r chi.Router) {
		if s.cfg.RequireCredentialToken && s.verifier != nil {
			r.Use(s.tokenAuthMiddleware)
		}
		r.Post("/forward_image", s.handleForwardImage)
		r.Post("/forward_image_b64", s.handleForwardImageB64)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.svc.Health(ctx); err != nil {
		status["ok"] = false
		status["audit"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["audit"] = "up"
	respondJSON(w, http.StatusOK, status)
}

type credentialsRequest struct {
	Postfix *string `json:"postfix" validate:"required"`
	UID     *int    `json:"uid" validate:"required"`
}

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decodeAndValidate(w, r, &req, smallBodyLimit) {
		return
	}
	msg, err := s.svc.IssueCredentials(r.Context(), *req.UID, *req.Postfix)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

type imageRequest struct {
	Image *string `json:"image" validate:"required"`
}

func (s *Server) handleCheckImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !s.decodeAndValidate(w, r, &req, s.jsonImageLimit()) {
		return
	}
	respondJSON(w, http.StatusOK, s.svc.CheckImage())
}

// handleForwardImage accepts either a multipart upload or a JSON body.
func (s *Server) handleForwardImage(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		raw, ok := s.readUpload(w, r)
		if !ok {
			return
		}
		s.forward(w, r, service.ForwardInput{Raw: raw, Source: service.SourceUpload})
		return
	}

	var req imageRequest
	if !s.decodeAndValidate(w, r, &req, s.jsonImageLimit()) {
		return
	}
	s.forward(w, r, service.ForwardInput{Image: *req.Image, Source: service.SourceJSON})
}

func (s *Server) handleForwardImageB64(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !s.decodeAndValidate(w, r, &req, s.jsonImageLimit()) {
		return
	}
	s.forward(w, r, service.ForwardInput{Image: *req.Image, Source: service.SourceBase64})
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, in service.ForwardInput) {
	res, err := s.svc.ForwardImage(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

// readUpload returns the bytes of the "file" part, falling back to "image".
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := int64(s.cfg.MaxImageBytes)
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "image exceeds the configured size limit")
			return nil, false
		}
		respondValidation(w, []service.Violation{{
			Loc: []string{"body"}, Msg: err.Error(), Type: "value_error.multipart",
		}}, nil)
		return nil, false
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, _, err = r.FormFile("image")
	}
	if err != nil {
		respondValidation(w, []service.Violation{{
			Loc: []string{"body", "file"}, Msg: "field required", Type: "value_error.missing",
		}}, nil)
		return nil, false
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respondServiceError(w, r, err)
		return nil, false
	}
	if int64(len(raw)) > limit {
		respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "image exceeds the configured size limit")
		return nil, false
	}
	return raw, true
}

func (s *Server) handleGetAuditEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.AuditEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) tokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.verifier.VerifyRequest(r); err != nil {
			respondServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonImageLimit leaves room for base64 expansion of a maximum size image.
func (s *Server) jsonImageLimit() int64 {
	return int64(s.cfg.MaxImageBytes)*4/3 + smallBodyLimit
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	log.Printf("[httpserver] %s %s failed (%s): %v", r.Method, r.URL.Path, kind, err)

	switch kind {
	case service.KindValidation:
		var se *service.Error
		var violations []service.Violation
		if errors.As(err, &se) {
			violations = se.Violations
		}
		respondValidation(w, violations, nil)
	case service.KindUpstreamUnreachable:
		respondError(w, http.StatusInternalServerError, codeUnreachable, msgForwardFailed)
	case service.KindUpstreamMalformed:
		respondError(w, http.StatusInternalServerError, codeMalformed, msgForwardFailed)
	case service.KindUnauthorized:
		respondError(w, http.StatusUnauthorized, codeAuth, err.Error())
	case service.KindNotFound:
		respondError(w, http.StatusNotFound, codeNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, codeInternal, msgInternal)
	}
}
