// Package notification serves the per-user inbox filled by the bid ledger
// (outbid) and the lifecycle tracker (won, cancelled).
package notification

import (
	"context"
	"fmt"
	"time"

	"ms-auction/internal/auctionerr"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/notification/db"
)

type DBLayer interface {
	List(ctx context.Context, userID string, unreadOnly bool, p models.Page) ([]models.Notification, int, int, error)
	MarkRead(ctx context.Context, id, userID string, now time.Time) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error)
	Delete(ctx context.Context, id, userID string) error
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
	Clock  func() time.Time
}

func NewService(store DBLayer, log *logger.Logger) *Service {
	return &Service{DB: store, Logger: log, Clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.Clock().UTC()
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, p models.Page) (*models.NotificationPage, error) {
	if userID == "" {
		return nil, auctionerr.ErrUnauthorized
	}
	items, total, unread, err := s.DB.List(ctx, userID, unreadOnly, p)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &models.NotificationPage{Items: items, Page: p.Page, Limit: p.Limit, Total: total, Unread: unread}, nil
}

// MarkRead is idempotent: the first call stamps readAt, later calls return
// the notification unchanged.
func (s *Service) MarkRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	n, err := s.DB.MarkRead(ctx, id, userID, s.now())
	if db.IsNotFound(err) {
		return nil, auctionerr.Newf(auctionerr.NotFound, "notification %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := s.DB.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read for %s: %w", userID, err)
	}
	s.Logger.Debug("NOTIFICATION", fmt.Sprintf("Marked %d notifications read for %s", n, userID))
	return n, nil
}

// Delete removes a notification owned by userID. Someone else's notification
// is reported as NotFound.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	err := s.DB.Delete(ctx, id, userID)
	if db.IsNotFound(err) {
		return auctionerr.Newf(auctionerr.NotFound, "notification %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return nil
}
