package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Setting keys used by the gateway. The table is a plain key/value store so
// the host admin surface can manage the same rows.
const (
	SettingAPIKey         = "api_key"
	SettingAPISecret      = "api_secret"
	SettingCallbackSecret = "callback_secret"
	SettingEnabled        = "enabled"
	SettingTitle          = "title"
	SettingDescription    = "description"
)

type SettingsRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// CallbackSecret returns the process-wide webhook secret, generating and
	// persisting one on first use. Concurrent first callers converge on a
	// single stored value.
	CallbackSecret(ctx context.Context) (string, error)
}

type settingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) SettingsRepo {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM gateway_settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO gateway_settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return err
}

func (r *settingsRepo) CallbackSecret(ctx context.Context) (string, error) {
	secret, err := r.Get(ctx, SettingCallbackSecret)
	if err != nil || secret != "" {
		return secret, err
	}

	generated, err := generateSecret()
	if err != nil {
		return "", err
	}

	// DO NOTHING keeps the first writer's value; re-read so every process
	// agrees on the same secret.
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO gateway_settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		SettingCallbackSecret, generated,
	)
	if err != nil {
		return "", err
	}
	return r.Get(ctx, SettingCallbackSecret)
}

func generateSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate callback secret: %w", err)
	}
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:]), nil
}
