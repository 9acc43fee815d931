package database

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE db_params (
	version INTEGER NOT NULL,
	network TEXT NOT NULL
);

CREATE TABLE signed_outpoints (
	txid BLOB NOT NULL,
	vout INTEGER NOT NULL,
	signature BLOB NOT NULL,
	UNIQUE(txid, vout)
);
`

// SignedOutpointDB implements SignedOutpointStorage over a single SQLite
// file. Every operation opens its own short-lived connection and runs in
// one transaction; no connection is held across operations. This is safe
// because the session loop guarantees a single caller at a time.
type SignedOutpointDB struct {
	path string
}

// NewSignedOutpointDB opens the ledger at path, creating it with owner-only
// permissions if it does not exist, and checks its metadata against the
// expected schema version and network.
func NewSignedOutpointDB(path, network string) (*SignedOutpointDB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Infof("No database at '%s', creating a new one", path)
		if err := createDB(path, network); err != nil {
			return nil, err
		}
	}

	s := &SignedOutpointDB{path: path}
	if err := s.checkParams(network); err != nil {
		return nil, err
	}

	return s, nil
}

func createDB(path, network string) error {
	// The driver would create the file for us, but we want 0600 perms.
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating db file: %w", err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("creating db file: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := db.Exec(
		"INSERT INTO db_params (version, network) VALUES (?, ?)",
		Version, network,
	); err != nil {
		return fmt.Errorf("inserting db_params: %w", err)
	}

	return nil
}

// checkParams refuses to operate on a database whose schema version or
// network tag differs from what this process expects. Run once at startup.
func (s *SignedOutpointDB) checkParams(network string) error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	var (
		version       int
		storedNetwork string
	)
	err = db.QueryRow("SELECT version, network FROM db_params").
		Scan(&version, &storedNetwork)
	if err != nil {
		return fmt.Errorf("reading db_params: %w", err)
	}

	if version != Version {
		return fmt.Errorf("%w: got %d, expected %d",
			ErrVersionMismatch, version, Version)
	}
	if storedNetwork != network {
		return fmt.Errorf("%w: got '%s', expected '%s'",
			ErrNetworkMismatch, storedNetwork, network)
	}

	return nil
}

// Lookup returns the stored signature for outpoint, or nil if we never
// signed it.
func (s *SignedOutpointDB) Lookup(outpoint wire.OutPoint) ([]byte, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	var signature []byte
	err = db.QueryRow(
		"SELECT signature FROM signed_outpoints WHERE txid = ? AND vout = ?",
		outpoint.Hash[:], outpoint.Index,
	).Scan(&signature)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("querying signed outpoint: %w", err)
	}

	return signature, nil
}

// Record stores a single signed outpoint.
func (s *SignedOutpointDB) Record(outpoint wire.OutPoint, signature []byte) error {
	return s.RecordMany([]SignedOutpoint{{
		Outpoint:  outpoint,
		Signature: signature,
	}})
}

// RecordMany stores all the given signed outpoints inside a single sql
// transaction, so a multi-input spend either commits entirely or not at
// all.
func (s *SignedOutpointDB) RecordMany(signed []SignedOutpoint) error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	for _, so := range signed {
		_, err := tx.Exec(
			"INSERT INTO signed_outpoints (txid, vout, signature) VALUES (?, ?, ?)",
			so.Outpoint.Hash[:], so.Outpoint.Index, so.Signature,
		)
		if err != nil {
			tx.Rollback()
			if sqliteErr, ok := err.(sqlite3.Error); ok &&
				sqliteErr.Code == sqlite3.ErrConstraint {
				return fmt.Errorf("%w: %s", ErrOutpointExists, so.Outpoint)
			}
			return fmt.Errorf("inserting signed outpoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Count returns the number of signed outpoints in the ledger.
func (s *SignedOutpointDB) Count() (int, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return 0, fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM signed_outpoints").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting signed outpoints: %w", err)
	}

	return n, nil
}

// ListOutpoints returns every outpoint ever signed, for operator
// inspection.
func (s *SignedOutpointDB) ListOutpoints() ([]wire.OutPoint, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT txid, vout FROM signed_outpoints")
	if err != nil {
		return nil, fmt.Errorf("querying signed outpoints: %w", err)
	}
	defer rows.Close()

	var outpoints []wire.OutPoint
	for rows.Next() {
		var (
			txid []byte
			vout uint32
		)
		if err := rows.Scan(&txid, &vout); err != nil {
			return nil, fmt.Errorf("scanning signed outpoint: %w", err)
		}
		hash, err := chainhash.NewHash(txid)
		if err != nil {
			return nil, fmt.Errorf("invalid txid in database: %w", err)
		}
		outpoints = append(outpoints, wire.OutPoint{Hash: *hash, Index: vout})
	}

	return outpoints, rows.Err()
}
