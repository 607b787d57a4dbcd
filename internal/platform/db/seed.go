package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salaryrules/internal/domain/auth"
	"salaryrules/internal/platform/config"
)

// Seed creates the default tenant and, when configured, its API client.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	tenantID, err := ensureTenant(ctx, pool, cfg.SeedTenantName)
	if err != nil {
		return err
	}
	return ensureClient(ctx, pool, tenantID, cfg.SeedClientID, cfg.SeedClientSecret)
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	err = pool.QueryRow(ctx, "INSERT INTO tenants (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func ensureClient(ctx context.Context, pool *pgxpool.Pool, tenantID, clientID, secret string) error {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(secret) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM api_clients WHERE client_id = $1", clientID).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
    INSERT INTO api_clients (tenant_id, client_id, secret_hash, name)
    VALUES ($1, $2, $3, $4)
  `, tenantID, clientID, hash, "seed client")
	return err
}
