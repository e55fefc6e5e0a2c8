package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"dhancore/internal/models"
)

func TestWatchlistRepositoryAdd(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewWatchlistRepository(db)
	entry := &models.WatchlistEntry{UserID: 1, Symbol: "RELIANCE", Expiry: models.EQExpiry, InstrumentType: "EQ"}

	mock.ExpectExec("INSERT INTO watchlist").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Add(context.Background(), entry); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
}

func TestWatchlistRepositoryAdd_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewWatchlistRepository(db)
	entry := &models.WatchlistEntry{UserID: 1, Symbol: "RELIANCE", Expiry: models.EQExpiry, InstrumentType: "EQ"}

	mock.ExpectExec("INSERT INTO watchlist").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err = repo.Add(context.Background(), entry)
	if err != ErrWatchlistEntryExists {
		t.Errorf("expected ErrWatchlistEntryExists, got %v", err)
	}
}

func TestWatchlistRepositoryRemove(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewWatchlistRepository(db)
	mock.ExpectExec("DELETE FROM watchlist").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Remove(context.Background(), 1, "RELIANCE", models.EQExpiry); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestWatchlistRepositoryList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_id", "symbol", "expiry", "instrument_type", "added_order"}).
		AddRow(1, "RELIANCE", models.EQExpiry, "EQ", 0)

	mock.ExpectQuery("SELECT (.+) FROM watchlist WHERE user_id").
		WithArgs(1).
		WillReturnRows(rows)

	repo := NewWatchlistRepository(db)
	entries, err := repo.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Symbol != "RELIANCE" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
