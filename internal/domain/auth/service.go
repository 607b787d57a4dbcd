package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrInvalidCredentials = errors.New("invalid client credentials")

type ClientStore interface {
	FindClient(ctx context.Context, clientID string) (Client, error)
	TouchClient(ctx context.Context, id string) error
}

type Service struct {
	store  ClientStore
	secret string
	ttl    time.Duration
}

func NewService(store ClientStore, secret string, ttl time.Duration) *Service {
	return &Service{store: store, secret: secret, ttl: ttl}
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TenantID    string    `json:"tenantId"`
}

// IssueToken exchanges client credentials for a signed token.
func (s *Service) IssueToken(ctx context.Context, clientID, clientSecret string) (Token, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || clientSecret == "" {
		return Token{}, ErrInvalidCredentials
	}
	client, err := s.store.FindClient(ctx, clientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if !client.Active {
		return Token{}, ErrInvalidCredentials
	}
	if err := CheckSecret(client.SecretHash, clientSecret); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	expires := time.Now().Add(s.ttl).UTC()
	signed, err := GenerateToken(s.secret, Claims{ClientID: client.ClientID, TenantID: client.TenantID}, s.ttl)
	if err != nil {
		return Token{}, err
	}
	if err := s.store.TouchClient(ctx, client.ID); err != nil {
		slog.Warn("touch api client failed", "client", client.ClientID, "err", err)
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires, TenantID: client.TenantID}, nil
}
