package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"salaryrules/internal/domain/auth"
	"salaryrules/internal/transport/http/api"
	"salaryrules/internal/transport/http/shared"
)

type TokenIssuer interface {
	IssueToken(ctx context.Context, clientID, clientSecret string) (auth.Token, error)
}

type Handler struct {
	Service TokenIssuer
}

func NewHandler(service TokenIssuer) *Handler {
	return &Handler{Service: service}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// HandleToken exchanges client credentials for a bearer token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var payload tokenRequest
	if err := api.Decode(r, &payload); err != nil {
		api.FailDecode(w, r, err)
		return
	}
	v := shared.NewValidator()
	v.Required("client_id", payload.ClientID, "is required")
	v.Required("client_secret", payload.ClientSecret, "is required")
	if v.Reject(w, r) {
		return
	}

	token, err := h.Service.IssueToken(r.Context(), payload.ClientID, payload.ClientSecret)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		api.Fail(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if err != nil {
		slog.Error("token issue failed", "client", payload.ClientID, "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "token_failed", "failed to issue token")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	api.Success(w, r, token)
}
