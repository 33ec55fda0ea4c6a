package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-docqa-backend/internal/domain"
)

func newSessionRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("session_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateSession_Error_NoTable(t *testing.T) {
	db := newSessionRepoDB(t /* no migrations */)
	s, err := CreateSession(context.Background(), db, "u1", "t")
	if err == nil || s != nil {
		t.Fatalf("expected error creating without table, got session=%v err=%v", s, err)
	}
}

func TestCreateSession_Success_PersistsAndSetsFields(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})

	start := time.Now().UTC().Add(-time.Minute)
	s, err := CreateSession(context.Background(), db, "u1", "My Session")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID == "" || s.UserID != "u1" || s.Title != "My Session" {
		t.Fatalf("unexpected Session fields: %+v", s)
	}
	if s.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset/really old: %v", s.CreatedAt)
	}
	// round-trip
	var got domain.Session
	if err := db.First(&got, "id = ?", s.ID).Error; err != nil {
		t.Fatalf("load created session: %v", err)
	}
	if got.UserID != "u1" || got.Title != "My Session" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestListSessions_OrderDescendingAndFilter(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})

	// Seed with known CreatedAt so order is deterministic.
	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC) // oldest
	t2 := t1.Add(1 * time.Hour)
	t3 := t2.Add(1 * time.Hour) // newest for u1
	s1 := domain.Session{ID: "s1", UserID: "u1", Title: "A", CreatedAt: t1}
	s2 := domain.Session{ID: "s2", UserID: "u1", Title: "B", CreatedAt: t2}
	s3 := domain.Session{ID: "s3", UserID: "u1", Title: "C", CreatedAt: t3}
	sx := domain.Session{ID: "sx", UserID: "u2", Title: "Other", CreatedAt: t2}

	for _, s := range []domain.Session{s1, s2, s3, sx} {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}

	list, err := ListSessions(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions for u1, got %d", len(list))
	}
	// Must be descending by CreatedAt: s3, s2, s1
	if list[0].ID != "s3" || list[1].ID != "s2" || list[2].ID != "s1" {
		t.Fatalf("unexpected order: %#v", list)
	}
}

func TestCountSessions_Error_NoTable(t *testing.T) {
	db := newSessionRepoDB(t /* no migrations */)
	if _, err := CountSessions(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error when table missing")
	}
}

func TestCountSessions_Success(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})
	// u1 has 2, u2 has 1
	if err := db.Create(&domain.Session{ID: "a", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if err := db.Create(&domain.Session{ID: "b", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed b: %v", err)
	}
	if err := db.Create(&domain.Session{ID: "x", UserID: "u2", Title: "t"}).Error; err != nil {
		t.Fatalf("seed x: %v", err)
	}

	total, err := CountSessions(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %d", total)
	}
}

func TestListSessionsPage_PaginationAndOrder(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})

	// Seed 5 sessions with increasing CreatedAt, so desc order is 5,4,3,2,1
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		s := domain.Session{
			ID:        string(rune('a' + i - 1)),
			UserID:    "u1",
			Title:     "t",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	// Offset 1, limit 2 => should return the 2nd and 3rd newest => IDs 'd','c'
	page, err := ListSessionsPage(context.Background(), db, "u1", 1, 2)
	if err != nil {
		t.Fatalf("ListSessionsPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "d" || page[1].ID != "c" {
		t.Fatalf("unexpected page slice: %+v", page)
	}
}

func TestGetSession_FoundAndNotFound(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})

	// Not found
	if _, err := GetSession(context.Background(), db, "nope", "u1"); err == nil {
		t.Fatalf("expected ErrRecordNotFound for missing session")
	}

	// Insert & fetch
	s := &domain.Session{ID: "sid", UserID: "owner", Title: "x"}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	got, err := GetSession(context.Background(), db, "sid", "owner")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != "sid" || got.UserID != "owner" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestUpdateSessionTitle_SuccessAndNotFound(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})

	// Seed one session
	s := &domain.Session{ID: "s1", UserID: "u1", Title: "old"}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Success
	if err := UpdateSessionTitle(context.Background(), db, "s1", "u1", "new"); err != nil {
		t.Fatalf("UpdateSessionTitle: %v", err)
	}
	var got domain.Session
	if err := db.First(&got, "id = ?", "s1").Error; err != nil {
		t.Fatalf("load updated: %v", err)
	}
	if got.Title != "new" {
		t.Fatalf("expected title 'new', got %q", got.Title)
	}

	// Not found (wrong user or id) -> gorm.ErrRecordNotFound
	if err := UpdateSessionTitle(context.Background(), db, "s1", "other", "x"); err == nil {
		t.Fatalf("expected ErrRecordNotFound when user mismatches")
	}
	if err := UpdateSessionTitle(context.Background(), db, "missing", "u1", "x"); err == nil {
		t.Fatalf("expected ErrRecordNotFound when id missing")
	}
}

func TestUpdateSessionTitle_Error_NoTable(t *testing.T) {
	db := newSessionRepoDB(t /* no migrations */)

	err := UpdateSessionTitle(context.Background(), db, "anyid", "anyuser", "newtitle")
	if err == nil {
		t.Fatalf("expected error when table does not exist")
	}
}

func TestDeleteSession_SuccessAndNotFound(t *testing.T) {
	db := newSessionRepoDB(t, &domain.Session{})

	s := &domain.Session{ID: "s1", UserID: "u1", Title: "t"}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Wrong owner -> not found, row untouched
	if err := DeleteSession(context.Background(), db, "s1", "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}

	// Success (soft delete)
	if err := DeleteSession(context.Background(), db, "s1", "u1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	var cnt int64
	if err := db.Model(&domain.Session{}).Where("id = ?", "s1").Count(&cnt).Error; err != nil {
		t.Fatalf("count after delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected session hidden after soft delete, count=%d", cnt)
	}
	// Row still present when unscoped (soft delete keeps it for audit)
	if err := db.Unscoped().Model(&domain.Session{}).Where("id = ?", "s1").Count(&cnt).Error; err != nil {
		t.Fatalf("unscoped count: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected soft-deleted row to remain, count=%d", cnt)
	}

	// Second delete -> not found
	if err := DeleteSession(context.Background(), db, "s1", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}
