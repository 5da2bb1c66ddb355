package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// GenesisPreviousHash is the previous_hash of the first entry in a chain.
	GenesisPreviousHash = "0"
	// GenesisCounterparty is the counterparty recorded on the genesis entry.
	GenesisCounterparty = "GENESIS"

	canonicalTimeLayout = "2006-01-02T15:04:05.000000Z"
)

var ErrNonCanonicalPayload = errors.New("ledger payload cannot be canonicalized")

// LedgerPayload is the hashed part of a ledger entry.
type LedgerPayload struct {
	SequenceIndex  int64
	Timestamp      time.Time
	TransactionID  string
	CounterpartyID string
	SignedAmount   decimal.Decimal
}

// LedgerEntry is one hash-linked, immutable record of a signed balance change.
type LedgerEntry struct {
	SequenceIndex  int64           `json:"sequence_index"`
	Timestamp      time.Time       `json:"timestamp"`
	TransactionID  string          `json:"transaction_id"`
	CounterpartyID string          `json:"counterparty_id"`
	SignedAmount   decimal.Decimal `json:"signed_amount"`
	PreviousHash   string          `json:"previous_hash"`
	Hash           string          `json:"hash"`
}

// canonicalPayload fixes key order (lexicographic) and value formats.
type canonicalPayload struct {
	CounterpartyID string `json:"counterparty_id"`
	SequenceIndex  int64  `json:"sequence_index"`
	SignedAmount   string `json:"signed_amount"`
	Timestamp      string `json:"timestamp"`
	TransactionID  string `json:"transaction_id"`
}

// Canonical returns the compact, key-sorted JSON encoding of p. Amounts use
// exactly two fractional digits and timestamps are UTC with microseconds.
func (p LedgerPayload) Canonical() ([]byte, error) {
	if p.SequenceIndex < 0 {
		return nil, fmt.Errorf("%w: negative sequence index", ErrNonCanonicalPayload)
	}
	if strings.TrimSpace(p.CounterpartyID) == "" {
		return nil, fmt.Errorf("%w: empty counterparty", ErrNonCanonicalPayload)
	}
	if p.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: zero timestamp", ErrNonCanonicalPayload)
	}
	if !p.SignedAmount.Equal(p.SignedAmount.Truncate(MoneyScale)) {
		return nil, fmt.Errorf("%w: amount %s exceeds %d decimals", ErrNonCanonicalPayload, p.SignedAmount, MoneyScale)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(canonicalPayload{
		CounterpartyID: p.CounterpartyID,
		SequenceIndex:  p.SequenceIndex,
		SignedAmount:   p.SignedAmount.StringFixed(MoneyScale),
		Timestamp:      p.Timestamp.UTC().Format(canonicalTimeLayout),
		TransactionID:  p.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNonCanonicalPayload, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeHash returns hex(SHA-256(canonical(p) || previousHash)).
func ComputeHash(p LedgerPayload, previousHash string) (string, error) {
	canonical, err := p.Canonical()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewLedgerEntry seals p onto a chain whose tip hash is previousHash.
func NewLedgerEntry(p LedgerPayload, previousHash string) (*LedgerEntry, error) {
	if previousHash == "" {
		return nil, fmt.Errorf("%w: empty previous hash", ErrNonCanonicalPayload)
	}
	p.Timestamp = NormalizeTime(p.Timestamp)
	hash, err := ComputeHash(p, previousHash)
	if err != nil {
		return nil, err
	}
	return &LedgerEntry{
		SequenceIndex:  p.SequenceIndex,
		Timestamp:      p.Timestamp,
		TransactionID:  p.TransactionID,
		CounterpartyID: p.CounterpartyID,
		SignedAmount:   p.SignedAmount,
		PreviousHash:   previousHash,
		Hash:           hash,
	}, nil
}

// NewGenesisEntry builds the first entry of an empty chain.
func NewGenesisEntry(now time.Time) (*LedgerEntry, error) {
	return NewLedgerEntry(LedgerPayload{
		SequenceIndex:  0,
		Timestamp:      now,
		CounterpartyID: GenesisCounterparty,
		SignedAmount:   decimal.Zero,
	}, GenesisPreviousHash)
}

// Payload returns the hashed fields of e.
func (e *LedgerEntry) Payload() LedgerPayload {
	return LedgerPayload{
		SequenceIndex:  e.SequenceIndex,
		Timestamp:      e.Timestamp,
		TransactionID:  e.TransactionID,
		CounterpartyID: e.CounterpartyID,
		SignedAmount:   e.SignedAmount,
	}
}

// HashValid recomputes e's hash and compares it with the stored one.
func (e *LedgerEntry) HashValid() bool {
	hash, err := ComputeHash(e.Payload(), e.PreviousHash)
	return err == nil && hash == e.Hash
}

// IsGenesis reports whether e is the chain's first entry.
func (e *LedgerEntry) IsGenesis() bool {
	return e.SequenceIndex == 0 && e.PreviousHash == GenesisPreviousHash
}

// ChainReport is the result of validating a ledger.
type ChainReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// VerifyChain checks hashes, previous-hash links and sequence order of an
// ordered slice of entries. It never mutates entries.
func VerifyChain(entries []LedgerEntry) ChainReport {
	report := ChainReport{Valid: true, Errors: []string{}}
	fail := func(format string, args ...any) {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	for i := range entries {
		e := &entries[i]
		if !e.HashValid() {
			fail("entry %d has invalid hash", e.SequenceIndex)
		}
		if i == 0 {
			if e.PreviousHash != GenesisPreviousHash {
				fail("entry %d has invalid previous hash", e.SequenceIndex)
			}
			continue
		}
		prev := &entries[i-1]
		if e.PreviousHash != prev.Hash {
			fail("entry %d has invalid previous hash", e.SequenceIndex)
		}
		if e.SequenceIndex != prev.SequenceIndex+1 {
			fail("entry %d has non-monotonic sequence index", e.SequenceIndex)
		}
	}
	return report
}

// ChainStats summarises a ledger.
type ChainStats struct {
	TotalEntries   int             `json:"total_entries"`
	ChainValid     bool            `json:"chain_valid"`
	LatestHash     string          `json:"latest_hash"`
	LatestSequence int64           `json:"latest_sequence"`
	NetSum         decimal.Decimal `json:"net_sum"`
}
