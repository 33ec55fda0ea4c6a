// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateSession(ctx, db, userID, title) -> *domain.Session, error
//     Inserts a new Session row with UUID primary key and UTC timestamp.
//
//   - ListSessions(ctx, db, userID) -> []domain.Session, error
//     Returns all sessions for a user, ordered by creation time descending.
//
//   - CountSessions(ctx, db, userID) -> (int64, error)
//     Returns the total number of sessions owned by the user.
//
//   - ListSessionsPage(ctx, db, userID, offset, limit) -> []domain.Session, error
//     Returns a paginated slice of sessions for a user.
//
//   - GetSession(ctx, db, id, userID) -> *domain.Session, error
//     Fetches a single session by ID/userID, or ErrNotFound if missing.
//
//   - UpdateSessionTitle(ctx, db, id, userID, title) -> error
//     Updates the title of a session, enforcing user ownership.
//     Returns ErrNotFound if the session does not exist.
//
//   - DeleteSession(ctx, db, id, userID) -> error
//     Soft-deletes a session, enforcing user ownership.
//     Returns ErrNotFound if the session does not exist.
//
// Usage:
//
//	// Within a service layer
//	session, err := repo.CreateSession(ctx, db, userID, "Contract review")
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
//
// This repository is designed to be wrapped by a higher-level service
// (see services.SessionService) which enforces business rules, caching,
// or cross-aggregate behavior.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSession inserts a new Session row owned by userID with the given title.
// The session ID is a randomly generated UUID (string), and CreatedAt is set to UTC.
//
// On success, it returns the persisted Session. On failure, it returns a DB error.
func CreateSession(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Session, error) {
	s := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns all sessions belonging to userID, ordered by creation
// time descending (most recent first). It returns an empty slice if the user
// has no sessions. On DB error, it returns the error.
func ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountSessions returns the total number of sessions owned by userID.
// On DB error, it returns the error.
func CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a paginated slice of sessions for userID, ordered by
// creation time descending. Use CountSessions to obtain the total for pagination
// metadata. On DB error, it returns the error.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetSession fetches a single session by its ID and owner (userID). If the
// record does not exist, it returns ErrNotFound. On other DB errors, the raw
// error is returned.
func GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSessionTitle updates the title of a session identified by id and owned
// by userID. If no rows are affected (session missing or not owned by userID),
// it returns ErrNotFound. On DB error, the raw error is returned.
func UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSession soft-deletes a session identified by id and owned by userID.
// If no rows are affected (session missing or not owned by userID), it returns
// ErrNotFound. On DB error, the raw error is returned.
func DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Session{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
