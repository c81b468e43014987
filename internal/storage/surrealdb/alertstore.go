package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AlertStore persists price alerts and the notifications they trigger.
type AlertStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewAlertStore(db *surrealdb.DB, logger *common.Logger) *AlertStore {
	return &AlertStore{
		db:     db,
		logger: logger,
	}
}

func (s *AlertStore) SaveAlert(ctx context.Context, alert *models.PriceAlert) error {
	if alert.ID == "" {
		return fmt.Errorf("alert has no id")
	}

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("price_alerts", alert.ID), "data": alert}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.PriceAlert](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save alert after retries: %w", lastErr)
}

// ListActiveAlerts returns active alerts, scoped to one user when userID
// is non-empty.
func (s *AlertStore) ListActiveAlerts(ctx context.Context, userID string) ([]*models.PriceAlert, error) {
	sql := "SELECT * FROM price_alerts WHERE is_active = true"
	vars := map[string]any{}
	if userID != "" {
		sql += " AND user_id = $user_id"
		vars["user_id"] = userID
	}

	results, err := surrealdb.Query[[]models.PriceAlert](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}

	var alerts []*models.PriceAlert
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			alerts = append(alerts, &(*results)[0].Result[i])
		}
	}
	return alerts, nil
}

func (s *AlertStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	sql := "UPDATE $rid SET is_active = false, triggered_at = $at"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("price_alerts", id),
		"at":  at,
	}

	if _, err := surrealdb.Query[[]models.PriceAlert](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark alert %s triggered: %w", id, err)
	}
	return nil
}

func (s *AlertStore) SaveNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("notification has no id")
	}

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("notifications", n.ID), "data": n}

	if _, err := surrealdb.Query[[]models.Notification](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *AlertStore) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := "SELECT * FROM notifications WHERE user_id = $user_id ORDER BY created_at DESC LIMIT $limit"
	vars := map[string]any{"user_id": userID, "limit": limit}

	results, err := surrealdb.Query[[]models.Notification](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	var notifications []*models.Notification
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			notifications = append(notifications, &(*results)[0].Result[i])
		}
	}
	return notifications, nil
}

// Compile-time check
var _ interfaces.AlertStore = (*AlertStore)(nil)
