package database

import (
	"errors"

	"github.com/btcsuite/btcd/wire"
)

// Version of the database schema. We are strict about it: a database
// created with any other version is refused, no migration is attempted.
const Version = 0

var (
	// ErrVersionMismatch is returned when the database on disk was created
	// with a different schema version.
	ErrVersionMismatch = errors.New("unexpected database version")

	// ErrNetworkMismatch is returned when the database on disk was created
	// for a different Bitcoin network. Mixing signed-outpoint history
	// across networks would be catastrophic, so this is fatal.
	ErrNetworkMismatch = errors.New("unexpected database network")

	// ErrOutpointExists is returned when recording an outpoint that was
	// already recorded. Given the decision engine checks every outpoint
	// before signing, hitting this is an internal-invariant violation.
	ErrOutpointExists = errors.New("outpoint already recorded")
)

// SignedOutpoint is one row of our anti-replay ledger: an outpoint we
// signed, along with the DER signature (sighash type byte included) we
// produced for it.
type SignedOutpoint struct {
	Outpoint  wire.OutPoint
	Signature []byte
}

// SignedOutpointStorage defines the ledger operations available to the
// decision engine. The engine only reads and appends; rows are never
// updated or deleted by the live protocol.
type SignedOutpointStorage interface {
	// Lookup returns the signature previously stored for the outpoint, or
	// nil if it was never signed. It never returns a false positive.
	Lookup(outpoint wire.OutPoint) ([]byte, error)

	// Record durably stores a single new signed outpoint. It returns
	// ErrOutpointExists if a record for this outpoint is already present.
	Record(outpoint wire.OutPoint, signature []byte) error

	// RecordMany stores a batch of signed outpoints as a single atomic
	// unit: either all become visible or none do.
	RecordMany(signed []SignedOutpoint) error
}
