package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-auction/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// List returns a page of the user's notifications, newest first, with the
// total matching the filter and the user's overall unread count.
func (d *DB) List(ctx context.Context, userID string, unreadOnly bool, p models.Page) ([]models.Notification, int, int, error) {
	var items []models.Notification
	q := d.Bun.NewSelect().Model(&items).Where("n.user_id = ?", userID)
	if unreadOnly {
		q = q.Where("n.is_read = ?", false)
	}
	total, err := q.OrderExpr("n.created_at DESC").OrderExpr("n.id DESC").
		Limit(p.Limit).Offset(p.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, 0, err
	}

	unread, err := d.Bun.NewSelect().Model((*models.Notification)(nil)).
		Where("n.user_id = ?", userID).
		Where("n.is_read = ?", false).
		Count(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, total, unread, nil
}

func (d *DB) Get(ctx context.Context, id, userID string) (*models.Notification, error) {
	var n models.Notification
	err := d.Bun.NewSelect().Model(&n).
		Where("n.id = ?", id).
		Where("n.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkRead sets read_at the first time only. It returns sql.ErrNoRows when
// the user owns no such notification.
func (d *DB) MarkRead(ctx context.Context, id, userID string, now time.Time) (*models.Notification, error) {
	_, err := d.Bun.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = ?", true).
		Set("read_at = ?", now).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return d.Get(ctx, id, userID)
}

func (d *DB) MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = ?", true).
		Set("read_at = ?", now).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Delete removes the notification if userID owns it.
func (d *DB) Delete(ctx context.Context, id, userID string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Notification)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist for this user.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
