package repository

// credentials_repository.go - persistence for the `dhan_credentials` table:
// the vendor access token used to authenticate the REST Data-API client and
// the market-data WebSocket connection. The access token is never stored in
// plaintext; pkg/crypto.Encrypt/Decrypt wrap it with AES-256-GCM under the
// process's ENCRYPTION_KEY (config.SecurityConfig.EncryptionKey), matching
// the at-rest guarantee models.DhanCredentials documents. Reads return the
// decrypted token.

import (
	"context"
	"database/sql"
	"errors"

	"dhancore/internal/models"
	"dhancore/pkg/crypto"
)

// ErrCredentialsNotFound is returned when a user id has no stored
// vendor credentials row.
var ErrCredentialsNotFound = errors.New("vendor credentials not found")

// CredentialsRepository is the Data Access Layer for dhan_credentials,
// decrypting/encrypting the access token around every read/write.
type CredentialsRepository struct {
	db  *sql.DB
	key []byte
}

// NewCredentialsRepository builds a CredentialsRepository. key must be
// exactly 32 bytes, as required by config.Load's ENCRYPTION_KEY validation.
func NewCredentialsRepository(db *sql.DB, key []byte) *CredentialsRepository {
	return &CredentialsRepository{db: db, key: key}
}

// Get returns userID's vendor credentials with the access token decrypted.
func (r *CredentialsRepository) Get(ctx context.Context, userID int64) (*models.DhanCredentials, error) {
	c := &models.DhanCredentials{}
	var encToken string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, client_id, access_token_enc, auth_type
		FROM dhan_credentials WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.ClientID, &encToken, &c.AuthType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}

	token, err := crypto.Decrypt(encToken, r.key)
	if err != nil {
		return nil, err
	}
	c.EncryptedAccessToken = token
	return c, nil
}

// AccessToken is a convenience wrapper for the common case of needing only
// the decrypted token, e.g. to authenticate a REST client or WS dial.
func (r *CredentialsRepository) AccessToken(ctx context.Context, userID int64) (string, error) {
	c, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return c.EncryptedAccessToken, nil
}

// Upsert stores accessToken for userID, encrypting it before it ever
// reaches the database.
func (r *CredentialsRepository) Upsert(ctx context.Context, userID int64, clientID, accessToken, authType string) error {
	encToken, err := crypto.Encrypt(accessToken, r.key)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dhan_credentials (user_id, client_id, access_token_enc, auth_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			access_token_enc = EXCLUDED.access_token_enc,
			auth_type = EXCLUDED.auth_type`,
		userID, clientID, encToken, authType)
	return err
}

// Delete removes userID's stored credentials.
func (r *CredentialsRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dhan_credentials WHERE user_id = $1`, userID)
	return err
}
