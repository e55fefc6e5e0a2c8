package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"dhancore/internal/models"
)

func TestExcludedUnderlyingRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExcludedUnderlyingRepository(db)
	entry := &models.ExcludedUnderlying{Underlying: "RELIANCE", Reason: "corporate action"}

	mock.ExpectQuery("INSERT INTO excluded_underlyings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID != 1 {
		t.Errorf("expected generated ID 1, got %d", entry.ID)
	}
}

func TestExcludedUnderlyingRepositoryCreate_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExcludedUnderlyingRepository(db)
	entry := &models.ExcludedUnderlying{Underlying: "RELIANCE", Reason: "dup"}

	mock.ExpectQuery("INSERT INTO excluded_underlyings").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err = repo.Create(context.Background(), entry)
	if err != ErrExcludedUnderlyingExists {
		t.Errorf("expected ErrExcludedUnderlyingExists, got %v", err)
	}
}

func TestExcludedUnderlyingRepositoryGetAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExcludedUnderlyingRepository(db)
	rows := sqlmock.NewRows([]string{"id", "underlying", "reason", "created_at"}).
		AddRow(1, "RELIANCE", "corporate action", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM excluded_underlyings").
		WillReturnRows(rows)

	entries, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Underlying != "RELIANCE" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestExcludedUnderlyingRepositoryIsExcluded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExcludedUnderlyingRepository(db)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("RELIANCE").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	excluded, err := repo.IsExcluded(context.Background(), "reliance")
	if err != nil {
		t.Fatalf("IsExcluded() error = %v", err)
	}
	if !excluded {
		t.Error("expected excluded = true")
	}
}

func TestExcludedUnderlyingRepositoryDelete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewExcludedUnderlyingRepository(db)
	mock.ExpectExec("DELETE FROM excluded_underlyings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Delete(context.Background(), 1)
	if err != ErrExcludedUnderlyingNotFound {
		t.Errorf("expected ErrExcludedUnderlyingNotFound, got %v", err)
	}
}
