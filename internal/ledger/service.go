package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/models"
)

// BalanceStore is the persistence surface the resolution workflow needs.
type BalanceStore interface {
	GetBetween(ctx context.Context, payerID, payeeID uuid.UUID) ([]*models.OutstandingBalance, error)
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*models.OutstandingBalance, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BalanceStatus) (bool, error)
}

// Service exposes the user-driven balance resolution workflow.
type Service struct {
	store  BalanceStore
	logger *logrus.Logger
}

// NewService creates a new ledger service
func NewService(store BalanceStore, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// MarkPaid transitions every pending balance owed by payer to payee into
// paid. Already-paid or resolved records are left alone; re-invocation is
// a no-op, not an error. Returns the number of records transitioned.
func (s *Service) MarkPaid(ctx context.Context, payerID, payeeID uuid.UUID) (int, error) {
	entries, err := s.store.GetBetween(ctx, payerID, payeeID)
	if err != nil {
		return 0, fmt.Errorf("failed to load balances: %w", err)
	}

	transitioned := 0
	for _, b := range entries {
		if b.Status != models.BalanceStatusPending {
			continue
		}
		ok, err := s.store.UpdateStatus(ctx, b.ID, models.BalanceStatusPending, models.BalanceStatusPaid)
		if err != nil {
			return transitioned, fmt.Errorf("failed to mark balance paid: %w", err)
		}
		if ok {
			transitioned++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"payer_id":     payerID,
		"payee_id":     payeeID,
		"transitioned": transitioned,
	}).Info("Balances marked paid")

	return transitioned, nil
}

// MarkReceived transitions every pending or paid balance owed by payer to
// payee into resolved. Idempotent in the same way as MarkPaid.
func (s *Service) MarkReceived(ctx context.Context, payerID, payeeID uuid.UUID) (int, error) {
	entries, err := s.store.GetBetween(ctx, payerID, payeeID)
	if err != nil {
		return 0, fmt.Errorf("failed to load balances: %w", err)
	}

	transitioned := 0
	for _, b := range entries {
		if b.Status == models.BalanceStatusResolved {
			continue
		}
		ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, models.BalanceStatusResolved)
		if err != nil {
			return transitioned, fmt.Errorf("failed to resolve balance: %w", err)
		}
		if ok {
			transitioned++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"payer_id":     payerID,
		"payee_id":     payeeID,
		"transitioned": transitioned,
	}).Info("Balances marked received")

	return transitioned, nil
}

// NetBetween returns the signed net position of userID against
// counterpartyID across all their unresolved entries, in both directions.
func (s *Service) NetBetween(ctx context.Context, userID, counterpartyID uuid.UUID) (models.NetBalance, error) {
	owed, err := s.store.GetBetween(ctx, counterpartyID, userID)
	if err != nil {
		return models.NetBalance{}, fmt.Errorf("failed to load balances: %w", err)
	}
	owing, err := s.store.GetBetween(ctx, userID, counterpartyID)
	if err != nil {
		return models.NetBalance{}, fmt.Errorf("failed to load balances: %w", err)
	}
	return Net(userID, counterpartyID, append(owed, owing...)), nil
}

// NetPositions returns the user's net position against every counterparty
// they share unresolved entries with.
func (s *Service) NetPositions(ctx context.Context, userID uuid.UUID) ([]models.NetBalance, error) {
	entries, err := s.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	counterparties := make(map[uuid.UUID]struct{})
	for _, b := range entries {
		if b.PayerID == userID {
			counterparties[b.PayeeID] = struct{}{}
		} else {
			counterparties[b.PayerID] = struct{}{}
		}
	}

	positions := make([]models.NetBalance, 0, len(counterparties))
	for counterparty := range counterparties {
		positions = append(positions, Net(userID, counterparty, entries))
	}
	return positions, nil
}
