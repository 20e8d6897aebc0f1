// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for wagering events.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogBetPlacement logs a bet placement event.
func (al *AuditLogger) LogBetPlacement(participationID, marketID, userID, option string, stake int64, lockedOdds map[string]float64, timestamp time.Time) {
	al.WithFields(logrus.Fields{
		"participation_id": participationID,
		"market_id":        marketID,
		"user_id":          userID,
		"option":           option,
		"stake":            stake,
		"locked_odds":      lockedOdds,
		"timestamp":        timestamp.Unix(),
	}).Info("Bet placement recorded")
}

// LogMarketTransition logs a market status transition.
func (al *AuditLogger) LogMarketTransition(marketID, oldStatus, newStatus, winnerOption string, totalPool int64) {
	al.WithFields(logrus.Fields{
		"market_id":     marketID,
		"old_status":    oldStatus,
		"new_status":    newStatus,
		"winner_option": winnerOption,
		"total_pool":    totalPool,
	}).Info("Market status changed")
}

// LogBalanceResolution logs a user-driven outstanding balance transition.
func (al *AuditLogger) LogBalanceResolution(payerID, payeeID, action string, transitioned int) {
	al.WithFields(logrus.Fields{
		"payer_id":     payerID,
		"payee_id":     payeeID,
		"action":       action,
		"transitioned": transitioned,
	}).Info("Balance resolution recorded")
}
