package auth

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Client is a row of api_clients.
type Client struct {
	ID         string
	TenantID   string
	ClientID   string
	Name       string
	SecretHash string
	Active     bool
}

func (s *Store) FindClient(ctx context.Context, clientID string) (Client, error) {
	var out Client
	err := s.DB.QueryRow(ctx, `
    SELECT id, tenant_id, client_id, name, secret_hash, active
    FROM api_clients
    WHERE client_id = $1
  `, clientID).Scan(&out.ID, &out.TenantID, &out.ClientID, &out.Name, &out.SecretHash, &out.Active)
	return out, err
}

func (s *Store) TouchClient(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, "UPDATE api_clients SET last_used_at = now() WHERE id = $1", id)
	return err
}
