// Package services – SessionService
//
// This file implements the SessionService, which manages the lifecycle of
// question-answering sessions. It validates and normalizes titles, enforces
// ownership rules, and coordinates repository operations for creating,
// listing (with pagination), renaming, and deleting sessions. Title handling
// is intentionally minimal here because automatic title generation is
// performed in AnswerService on the first question.
//
// Deleting a session also drops its in-memory document collection; the
// documents are not recoverable afterwards.
//
// Service-level errors (e.g., ErrSessionNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"golang.org/x/text/language"
)

// SessionRepo defines the repository contract required by SessionService.
// Implementations are responsible for persistence of session aggregates.
type SessionRepo interface {
	// CreateSession inserts a new session row for the given user.
	CreateSession(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Session, error)

	// ListSessions returns all sessions belonging to the user (non-paginated).
	ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Session, error)

	// GetSession fetches a session by ID ensuring it belongs to the user.
	GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Session, error)

	// UpdateSessionTitle updates a session's title (only if it belongs to the user).
	UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error

	// DeleteSession soft-deletes a session (only if it belongs to the user).
	DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error

	// CountSessions returns the total number of sessions for pagination.
	CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListSessionsPage returns a page of sessions belonging to the user.
	ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Session, error)
}

// SessionService provides session-level operations such as creating,
// listing, renaming, and deleting sessions. It enforces title rules
// and ensures ownership constraints.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the session repository used by this service.
	Repo SessionRepo
	// Collections holds the per-session document collections; may be nil
	// in tests that never exercise Delete.
	Collections *CollectionRegistry

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale is retained for compatibility; auto-titling is handled in AnswerService.
	TitleLocale language.Tag
}

// NewSessionService constructs a SessionService with sane defaults for title handling.
func NewSessionService(db *gorm.DB, r SessionRepo, reg *CollectionRegistry) *SessionService {
	return &SessionService{
		DB:          db,
		Repo:        r,
		Collections: reg,
		TitleMaxLen: 80,
		TitleLocale: language.Und,
	}
}

// Create inserts a new session owned by userID with the provided title.
// Titles are normalized, trimmed, clipped, and a default fallback is applied.
func (s *SessionService) Create(ctx context.Context, userID, title string) (*domain.Session, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = "New session"
	}
	return s.Repo.CreateSession(ctx, s.DB, userID, s.clip(title))
}

// List returns all sessions for a user (non-paginated).
// Prefer ListPage for scalability on large datasets.
func (s *SessionService) List(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.Repo.ListSessions(ctx, s.DB, userID)
}

// ListPage returns a page of sessions for a user (paginated).
// It applies defaults for invalid page/pageSize and returns total count.
func (s *SessionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Session, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountSessions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}

	items, err := s.Repo.ListSessionsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Get fetches a session by ID, ensuring it belongs to the given user.
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	sess, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// UpdateTitle updates a session's title, ensuring the session exists and
// belongs to the given user. Falls back to "Untitled" if title is blank.
func (s *SessionService) UpdateTitle(ctx context.Context, userID, sessionID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = "Untitled"
	}
	// Ensure the session exists and belongs to the user.
	if _, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return s.Repo.UpdateSessionTitle(ctx, s.DB, sessionID, userID, s.clip(title))
}

// Delete soft-deletes a session and drops its in-memory collection.
// The collection is dropped only after the row delete succeeds, so a failed
// delete leaves the documents intact.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	if err := s.Repo.DeleteSession(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if s.Collections != nil {
		s.Collections.Drop(sessionID)
	}
	return nil
}

// clip truncates a session title to the configured maximum rune length.
func (s *SessionService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
