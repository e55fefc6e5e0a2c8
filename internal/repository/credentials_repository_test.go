package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"dhancore/pkg/crypto"
)

const testEncryptionKey = "01234567890123456789012345678901" // 32 bytes, test-only

func TestCredentialsRepositoryGet_DecryptsToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	key := []byte(testEncryptionKey)[:32]
	encToken, err := crypto.Encrypt("super-secret-vendor-token", key)
	if err != nil {
		t.Fatalf("failed to encrypt fixture token: %v", err)
	}

	repo := NewCredentialsRepository(db, key)

	rows := sqlmock.NewRows([]string{"user_id", "client_id", "access_token_enc", "auth_type"}).
		AddRow(int64(1), "CLIENT123", encToken, "access_token")
	mock.ExpectQuery("SELECT user_id, client_id, access_token_enc, auth_type").WillReturnRows(rows)

	creds, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if creds.EncryptedAccessToken != "super-secret-vendor-token" {
		t.Errorf("expected decrypted token, got %q", creds.EncryptedAccessToken)
	}
	if creds.ClientID != "CLIENT123" {
		t.Errorf("expected client id CLIENT123, got %q", creds.ClientID)
	}
}

func TestCredentialsRepositoryGet_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewCredentialsRepository(db, []byte(testEncryptionKey)[:32])
	mock.ExpectQuery("SELECT user_id, client_id, access_token_enc, auth_type").WillReturnError(sql.ErrNoRows)

	_, err = repo.Get(context.Background(), 99)
	if err != ErrCredentialsNotFound {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestCredentialsRepositoryUpsert_EncryptsBeforeStoring(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewCredentialsRepository(db, []byte(testEncryptionKey)[:32])
	mock.ExpectExec("INSERT INTO dhan_credentials").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), 1, "CLIENT123", "plaintext-token", "access_token"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}
