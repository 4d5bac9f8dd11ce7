package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lohmander/brink-auth/cmd/identity"
	"github.com/lohmander/brink-auth/cmd/internal/auth/authn"
)

// Config controls HTTP API behavior.
type Config struct {
	MaxBodyBytes int64
}

// DefaultConfig returns the API defaults: 1 MiB request bodies.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 1 << 20}
}

// Handler wires the identity HTTP endpoints to the authenticator service.
type Handler struct {
	log  *slog.Logger
	auth *authn.Service
	cfg  Config
}

// NewHandler constructs an identity API Handler.
func NewHandler(log *slog.Logger, auth *authn.Service, cfg Config) (*Handler, error) {
	if auth == nil {
		return nil, errors.New("api: nil authn service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Handler{log: log, auth: auth, cfg: cfg}, nil
}

// Register wires the identity routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /identities/auth", h.handleAuthenticate)
	mux.HandleFunc("GET /identities", h.handleList)
	mux.HandleFunc("POST /identities", h.handleCreate)
	mux.HandleFunc("GET /identities/{id}", h.handleGet)
	mux.HandleFunc("PUT /identities/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /identities/{id}", h.handleDelete)
}

// ---- handlers ----

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	rec, err := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if identity.IsUnauthorized(err) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect username or password")
			return
		}
		h.log.Error("api.auth.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	issued, err := h.auth.IssueToken(rec, time.Now().UTC())
	if err != nil {
		h.log.Error("api.auth.issue_token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeData(w, http.StatusOK, authResponse{
		Token:    issued.Token,
		Expires:  issued.ExpiresAt,
		Identity: toIdentityResponse(rec),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	out := []identityResponse{}
	for rec, err := range h.auth.ListIdentities(r.Context()) {
		if err != nil {
			h.log.Error("api.list.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		out = append(out, toIdentityResponse(rec))
	}

	writeData(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	rec, err := h.auth.CreateIdentity(r.Context(), authn.CreateInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusBadRequest, "username_taken", "username is already taken")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", invalidInputMessage(err))
		default:
			h.log.Error("api.create.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeData(w, http.StatusCreated, toIdentityResponse(rec))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.auth.GetIdentity(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			writeError(w, http.StatusNotFound, "not_found", "identity not found")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", invalidInputMessage(err))
		default:
			h.log.Error("api.get.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeData(w, http.StatusOK, toIdentityResponse(rec))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	rec, err := h.auth.UpdateIdentity(r.Context(), r.PathValue("id"), identity.Partial{
		ID:       trimPtr(req.ID),
		Username: trimPtr(req.Username),
		Password: req.Password,
	})
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			writeError(w, http.StatusNotFound, "not_found", "identity not found")
		case identity.IsConflict(err):
			code, msg := conflictMessage(err)
			writeError(w, http.StatusBadRequest, code, msg)
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", invalidInputMessage(err))
		default:
			h.log.Error("api.update.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeData(w, http.StatusOK, toIdentityResponse(rec))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DeleteIdentity(r.Context(), r.PathValue("id")); err != nil {
		if identity.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_request", invalidInputMessage(err))
			return
		}
		h.log.Error("api.delete.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
