package alert

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

type mockAlertStore struct {
	alerts        []*models.PriceAlert
	listErr       error
	notifications []*models.Notification
	triggeredIDs  []string
}

func (m *mockAlertStore) SaveAlert(ctx context.Context, alert *models.PriceAlert) error {
	return errors.New("not implemented")
}

func (m *mockAlertStore) ListActiveAlerts(ctx context.Context, userID string) ([]*models.PriceAlert, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if userID == "" {
		return m.alerts, nil
	}
	var scoped []*models.PriceAlert
	for _, a := range m.alerts {
		if a.UserID == userID {
			scoped = append(scoped, a)
		}
	}
	return scoped, nil
}

func (m *mockAlertStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	m.triggeredIDs = append(m.triggeredIDs, id)
	return nil
}

func (m *mockAlertStore) SaveNotification(ctx context.Context, n *models.Notification) error {
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockAlertStore) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	return m.notifications, nil
}

type mockPriceStore struct {
	prices map[string]float64
	getErr error
}

func (m *mockPriceStore) UpsertPrice(ctx context.Context, rec *models.PriceRecord) error {
	return errors.New("not implemented")
}

func (m *mockPriceStore) GetPrice(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	price, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: price for %s", common.ErrNotFound, symbol)
	}
	return &models.PriceRecord{Symbol: symbol, PriceUSD: price}, nil
}

func (m *mockPriceStore) ListPrices(ctx context.Context) ([]*models.PriceRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPriceStore) DeletePrice(ctx context.Context, symbol string) error {
	return errors.New("not implemented")
}

type mockStorage struct {
	alerts *mockAlertStore
	prices *mockPriceStore
}

func (m *mockStorage) PriceStore() interfaces.PriceStore     { return m.prices }
func (m *mockStorage) AccountStore() interfaces.AccountStore { return nil }
func (m *mockStorage) AlertStore() interfaces.AlertStore     { return m.alerts }
func (m *mockStorage) Close() error                          { return nil }

func newTestService(alerts *mockAlertStore, prices *mockPriceStore) *Service {
	storage := &mockStorage{alerts: alerts, prices: prices}
	svc := NewService(common.NewSilentLogger(), storage)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestEvaluateTriggersAboveAlert(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{"BTC": 43000}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Evaluated)
	require.Equal(t, 1, result.Triggered)

	require.Len(t, alerts.notifications, 1)
	n := alerts.notifications[0]
	require.Equal(t, "u1", n.UserID)
	require.Equal(t, "price_alert", n.Type)
	require.NotEmpty(t, n.ID)
	require.Equal(t, []string{"a1"}, alerts.triggeredIDs)
}

func TestEvaluateDoesNotTriggerBelowTarget(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{"BTC": 41000}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Evaluated)
	require.Equal(t, 0, result.Triggered)
	require.Empty(t, alerts.notifications)
	require.Empty(t, alerts.triggeredIDs)
}

func TestEvaluateBelowCondition(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "ETH", TargetPrice: 3000, Condition: models.AlertBelow, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{"ETH": 2500}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Triggered)
}

func TestEvaluateDryRunWritesNothing(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{"BTC": 43000}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Triggered)
	require.Empty(t, alerts.notifications)
	require.Empty(t, alerts.triggeredIDs)
}

func TestEvaluateUsesFallbackPriceWhenNotSynced(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		// Fallback BTC price is 43000
		{ID: "a1", UserID: "u1", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Triggered)
}

func TestEvaluateSkipsSymbolWithNoPriceAnywhere(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "DOGE", TargetPrice: 0.1, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Evaluated)
	require.Equal(t, 0, result.Triggered)
}

func TestEvaluateScopesToUser(t *testing.T) {
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
		{ID: "a2", UserID: "u2", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{prices: map[string]float64{"BTC": 43000}}
	svc := newTestService(alerts, prices)

	result, err := svc.Evaluate(context.Background(), "u2", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Evaluated)
	require.Equal(t, []string{"a2"}, alerts.triggeredIDs)
}

func TestEvaluateStoreOutageDoesNotFallBack(t *testing.T) {
	// A failed read is not a missing row: the evaluation must abort
	// instead of judging the alert against the static fallback price.
	alerts := &mockAlertStore{alerts: []*models.PriceAlert{
		{ID: "a1", UserID: "u1", Symbol: "BTC", TargetPrice: 42000, Condition: models.AlertAbove, IsActive: true},
	}}
	prices := &mockPriceStore{getErr: errors.New("connection refused")}
	svc := newTestService(alerts, prices)

	_, err := svc.Evaluate(context.Background(), "u1", false)
	require.ErrorIs(t, err, common.ErrPersistence)
	require.Empty(t, alerts.notifications)
	require.Empty(t, alerts.triggeredIDs)
}

func TestEvaluateListFailure(t *testing.T) {
	alerts := &mockAlertStore{listErr: errors.New("db down")}
	svc := newTestService(alerts, &mockPriceStore{})

	_, err := svc.Evaluate(context.Background(), "", false)
	require.ErrorIs(t, err, common.ErrPersistence)
}
