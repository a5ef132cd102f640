package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/seralis/hermes/internal/model"
)

const documentVersion = "1.0"

// Protection carries the metadata used to detect silent corruption of the
// persisted document. The checksum is computed over every collection and
// excludes this block itself.
type Protection struct {
	Checksum     string    `json:"checksum"`
	LastModified time.Time `json:"last_modified"`
	Version      string    `json:"version"`
}

// Document is the single persisted snapshot of all service state.
type Document struct {
	Wallets      map[string]*model.Wallet      `json:"wallets"`
	Orders       map[string]*model.Order       `json:"orders"`
	Transactions map[string]*model.Transaction `json:"transactions"`
	Deposits     map[string]*model.Deposit     `json:"deposits"`
	Refunds      map[string]*model.Refund      `json:"refunds"`
	Reservations map[string]*model.Reservation `json:"reservations"`
	Protection   Protection                    `json:"_protection"`
}

func NewDocument() *Document {
	return &Document{
		Wallets:      map[string]*model.Wallet{},
		Orders:       map[string]*model.Order{},
		Transactions: map[string]*model.Transaction{},
		Deposits:     map[string]*model.Deposit{},
		Refunds:      map[string]*model.Refund{},
		Reservations: map[string]*model.Reservation{},
		Protection: Protection{
			Version: documentVersion,
		},
	}
}

// Checksum returns the SHA-256 of the document content excluding the
// protection block. encoding/json emits map keys in sorted order, so the
// encoding is deterministic.
func (d *Document) Checksum() (string, error) {
	content := struct {
		Wallets      map[string]*model.Wallet      `json:"wallets"`
		Orders       map[string]*model.Order       `json:"orders"`
		Transactions map[string]*model.Transaction `json:"transactions"`
		Deposits     map[string]*model.Deposit     `json:"deposits"`
		Refunds      map[string]*model.Refund      `json:"refunds"`
		Reservations map[string]*model.Reservation `json:"reservations"`
	}{d.Wallets, d.Orders, d.Transactions, d.Deposits, d.Refunds, d.Reservations}

	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode document for checksum: %w", err)
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// validateStructure checks that every required collection is present.
// Old backups may predate the reservations map; it is created on load
// rather than treated as corruption.
func (d *Document) validateStructure() error {
	if d.Wallets == nil {
		return fmt.Errorf("missing wallets collection")
	}
	if d.Orders == nil {
		return fmt.Errorf("missing orders collection")
	}
	if d.Transactions == nil {
		return fmt.Errorf("missing transactions collection")
	}
	if d.Deposits == nil {
		return fmt.Errorf("missing deposits collection")
	}
	if d.Refunds == nil {
		return fmt.Errorf("missing refunds collection")
	}
	return nil
}

// normalize fills collections tolerated as absent in older documents.
func (d *Document) normalize() {
	if d.Reservations == nil {
		d.Reservations = map[string]*model.Reservation{}
	}
}
