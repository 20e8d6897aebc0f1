// Package ledger turns settlement payouts into directed per-counterparty
// debts, nets them for display, and runs the pay/receive resolution
// workflow. Individual entries are the audit trail and are never merged.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sidepot/sidepot/internal/models"
)

// amountPlaces is the display precision of ledger amounts.
const amountPlaces = 2

// BuildEntries derives the outstanding balances for one settled market.
// Each winner's profit (payout minus their own stake) is owed by the
// losers in proportion to each loser's stake relative to the total losing
// stakes, one entry per (loser, winner) pair. Zero-amount pairs are
// dropped. The result is deterministic given the participation list.
func BuildEntries(marketID uuid.UUID, parts []*models.Participation, winningOption string, now time.Time) []*models.OutstandingBalance {
	var (
		winners     []*models.Participation
		losers      []*models.Participation
		loserStakes int64
	)
	for _, p := range parts {
		if p.Option == winningOption {
			winners = append(winners, p)
		} else {
			losers = append(losers, p)
			loserStakes += p.Stake
		}
	}
	if len(winners) == 0 || len(losers) == 0 {
		return nil
	}

	totalLoserStakes := decimal.NewFromInt(loserStakes)
	evenShare := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(losers))))

	var entries []*models.OutstandingBalance
	for _, w := range winners {
		profit := w.Profit()
		if profit.IsZero() {
			continue
		}
		for _, l := range losers {
			var share decimal.Decimal
			if loserStakes > 0 {
				share = decimal.NewFromInt(l.Stake).Div(totalLoserStakes)
			} else {
				share = evenShare
			}
			amount := profit.Mul(share).Round(amountPlaces)
			if amount.IsZero() {
				continue
			}
			entries = append(entries, &models.OutstandingBalance{
				ID:        uuid.New(),
				MarketID:  marketID,
				PayerID:   l.UserID,
				PayeeID:   w.UserID,
				Amount:    amount,
				Status:    models.BalanceStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	return entries
}

// Net collapses a set of balance records into one signed amount from the
// perspective of userID against counterpartyID. Only entries between the
// two users count; positive means the counterparty owes userID. Both
// pending and paid entries count: a paid entry is still outstanding until
// the payee confirms receipt and the record resolves. Resolved entries
// are excluded.
func Net(userID, counterpartyID uuid.UUID, entries []*models.OutstandingBalance) models.NetBalance {
	net := models.NetBalance{
		UserID:         userID,
		CounterpartyID: counterpartyID,
		Amount:         decimal.Zero,
	}
	for _, b := range entries {
		if b.Status == models.BalanceStatusResolved {
			continue
		}
		switch {
		case b.PayeeID == userID && b.PayerID == counterpartyID:
			net.Amount = net.Amount.Add(b.Amount)
			net.EntryCount++
		case b.PayerID == userID && b.PayeeID == counterpartyID:
			net.Amount = net.Amount.Sub(b.Amount)
			net.EntryCount++
		}
	}
	return net
}
