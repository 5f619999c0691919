package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/BradenHooton/loginguard/internal/models"
)

// Sink is an append-only record of confirmed attacks
type Sink interface {
	// RecordAttack submits one attack and returns its transaction id.
	// Submitting the same record twice returns the same id.
	RecordAttack(ctx context.Context, rec AttackRecord) (string, error)
	// AttackCount returns how many attacks the sink holds or has accepted
	AttackCount(ctx context.Context) (int64, error)
	Backend() string
}

// Count scopes reported alongside AttackCount
const (
	ScopeLedger  = "ledger"
	ScopeProcess = "process"
)

// Scoped is implemented by sinks whose AttackCount does not cover the whole ledger
type Scoped interface {
	CountScope() string
}

// CountScope returns what s's AttackCount covers
func CountScope(s Sink) string {
	if sc, ok := s.(Scoped); ok {
		return sc.CountScope()
	}
	return ScopeLedger
}

// AttackRecord is the flat record submitted for a confirmed attack.
// Scores are integer basis points. LogID ties the record to its security event
// and keeps attempts within the same second distinct.
type AttackRecord struct {
	LogID                 string `json:"log_id"`
	Timestamp             int64  `json:"timestamp"`
	Email                 string `json:"email"`
	UserID                string `json:"user_id"`
	IPAddress             string `json:"ip_address"`
	Country               string `json:"country"`
	AttackType            string `json:"attack_type"`
	Confidence            int64  `json:"confidence"`
	ClassifierProbability int64  `json:"classifier_probability"`
	ClassifierUsed        bool   `json:"classifier_used"`
	LoginSuccessful       bool   `json:"login_successful"`
}

// NewAttackRecord builds the ledger record for an attempt and its verdict
func NewAttackRecord(a models.AttemptRecord, d models.DetectionResult, logID string) AttackRecord {
	return AttackRecord{
		LogID:                 logID,
		Timestamp:             a.Timestamp.Unix(),
		Email:                 a.Email,
		UserID:                a.UserID,
		IPAddress:             a.IPAddress,
		Country:               a.Country,
		AttackType:            string(d.AttackType),
		Confidence:            ToBasisPoints(d.Confidence),
		ClassifierProbability: ToBasisPoints(d.ClassifierProbability),
		ClassifierUsed:        d.ClassifierUsed,
		LoginSuccessful:       a.LoginSuccessful,
	}
}

// Key identifies a record for deduplication
func (r AttackRecord) Key() string {
	payload, _ := json.Marshal(r)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ToBasisPoints scales a fraction in [0,1] to an integer in [0,10000], truncating
func ToBasisPoints(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 10000
	}
	return int64(v * 10000)
}

// Noop is used when no ledger backend is configured
type Noop struct{}

// RecordAttack implements Sink
func (Noop) RecordAttack(ctx context.Context, rec AttackRecord) (string, error) {
	return "", models.ErrLedgerDisabled
}

// AttackCount implements Sink
func (Noop) AttackCount(ctx context.Context) (int64, error) {
	return 0, models.ErrLedgerDisabled
}

// Backend implements Sink
func (Noop) Backend() string {
	return "none"
}
