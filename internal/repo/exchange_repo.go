// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Exchange model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
)

// CreateExchange inserts a new exchange row.
func CreateExchange(db *gorm.DB, sessionID, question, answer string, score *float64) (*domain.Exchange, error) {
	e := &domain.Exchange{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Score:     score,
		CreatedAt: time.Now().UTC(),
	}
	return e, db.Create(e).Error
}

// ListExchanges returns exchanges ordered deterministically (CreatedAt ASC, ID ASC).
func ListExchanges(db *gorm.DB, sessionID string, limit int) ([]domain.Exchange, error) {
	var out []domain.Exchange
	q := db.Where("session_id = ?", sessionID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountExchanges uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountExchanges(db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM exchanges WHERE session_id = ?", sessionID).Scan(&total).Error
	return total, err
}

// ListExchangesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListExchangesPage(db *gorm.DB, sessionID string, offset, limit int) ([]domain.Exchange, error) {
	var out []domain.Exchange
	err := db.
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LeaveFeedback creates a feedback row for an exchange.
func LeaveFeedback(db *gorm.DB, exchangeID string, value int) error {
	fb := &domain.Feedback{
		ID:         uuid.NewString(),
		ExchangeID: exchangeID,
		Value:      value,
		CreatedAt:  time.Now().UTC(),
	}
	return db.Create(fb).Error
}

// GetExchange fetches an exchange by ID.
func GetExchange(db *gorm.DB, id string) (*domain.Exchange, error) {
	var e domain.Exchange
	if err := db.Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}
