// Package domain defines the persistence models for sessions, exchanges, and
// feedback. These types are mapped with GORM and form the core data layer
// of the document question-answering application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Session represents a question-answering workspace owned by a user. Each
// session has a generated title, holds an in-memory document collection,
// and records the question/answer exchanges run against it.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the session owner; indexed for efficient retrieval.
//   - Title: human-readable session title (auto-generated if not provided).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Session struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"   gorm:"type:varchar(64);not null;index:idx_user_sessions"`
	Title     string         `json:"title"     gorm:"type:varchar(255);not null;default:'New session'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Exchange represents a single question asked within a session together with
// the answer produced from the session's documents. Answers that did not
// clear the relevance threshold are stored with a nil score.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SessionID: foreign key to the owning session (indexed).
//   - Question: full text of the user's question.
//   - Answer: full text of the produced answer.
//   - Score: relevance score of the best passage (nil when nothing matched).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
//   - Session: FK association, ensures cascade delete/update.
type Exchange struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string         `json:"session_id" gorm:"type:char(36);not null;index:idx_session_exchanges,priority:1"`
	Question  string         `json:"question"   gorm:"type:text;not null"`
	Answer    string         `json:"answer"     gorm:"type:text;not null"`
	Score     *float64       `json:"score,omitempty"` // nil when no passage matched
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_session_exchanges,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Session is the parent workspace. Exchanges are cascade-deleted
	// if their session is removed.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Exchange.
func (Exchange) TableName() string { return "exchanges" }

// Feedback represents a user-provided rating on a specific answer.
// A user can only leave one feedback entry per exchange (enforced by unique index).
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ExchangeID: foreign key to the rated exchange (unique per user).
//   - UserID: identifier of the feedback author (unique per exchange).
//   - Value: +1 (positive) or -1 (negative).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
//   - Exchange: FK association, ensures cascade delete/update.
type Feedback struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ExchangeID string         `json:"exchange_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_exchange_user"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index;uniqueIndex:ux_feedback_exchange_user"`
	Value      int            `json:"value"       gorm:"not null;check:value IN (-1,1)"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	// Exchange is the rated answer. Feedback is cascade-deleted
	// if the underlying exchange is removed.
	Exchange Exchange `json:"-" gorm:"foreignKey:ExchangeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
