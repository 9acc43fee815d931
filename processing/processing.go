// Package processing implements the signing decision of the cosigning
// server: a dead-simple anti-replay oracle that signs a Spend transaction
// if and only if none of its outpoints was ever signed before, and replays
// its previous signatures for a byte-compatible retransmission.
package processing

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	log "github.com/sirupsen/logrus"

	"github.com/revault/cosignerd/database"
	"github.com/revault/cosignerd/spendtx"
)

// Outcome is the terminal state of one sign request. There is no
// in-progress state visible across calls.
type Outcome int

const (
	// OutcomeSigned means the transaction now carries our signature on
	// every input, either freshly computed or replayed from the ledger.
	OutcomeSigned Outcome = iota

	// OutcomeRefused means we won't sign: some (but not all) outpoints
	// were already signed, or a replayed signature did not verify. This is
	// a legitimate protocol outcome, not an error.
	OutcomeRefused

	// OutcomeGarbage means the request was malformed: a finalized
	// transaction, or one spending the same outpoint twice. Rejected
	// before any ledger access.
	OutcomeGarbage
)

// SignResult is the decision for one request. Tx is nil unless Outcome is
// OutcomeSigned.
type SignResult struct {
	Outcome Outcome
	Tx      *spendtx.SpendTx
}

func refused() *SignResult {
	return &SignResult{Outcome: OutcomeRefused}
}

func garbage() *SignResult {
	return &SignResult{Outcome: OutcomeGarbage}
}

// Process decides what to answer to a sign request for tx. It is a pure
// function of the transaction, the ledger state and the signing key, whose
// single side effect is appending to the ledger. The caller must guarantee
// no concurrent invocation.
func Process(store database.SignedOutpointStorage, tx *spendtx.SpendTx,
	privKey *btcec.PrivateKey) (*SignResult, error) {

	// A finalized transaction's sighashes cannot be recomputed; no honest
	// manager would send one.
	if tx.IsFinalized() {
		log.Warn("Rejecting finalized spend transaction")
		return garbage(), nil
	}

	outpoints := tx.Outpoints()
	if len(outpoints) == 0 {
		log.Warn("Rejecting spend transaction without inputs")
		return garbage(), nil
	}

	// A duplicated outpoint within a single request would corrupt the
	// all-or-nothing accounting below. Only a hostile or buggy sender can
	// produce this.
	seen := make(map[string]struct{}, len(outpoints))
	for _, outpoint := range outpoints {
		key := outpoint.String()
		if _, ok := seen[key]; ok {
			log.Warnf("Rejecting spend transaction with duplicated outpoint '%s'",
				outpoint)
			return garbage(), nil
		}
		seen[key] = struct{}{}
	}

	// Partition the inputs between those we already signed for and those
	// we never saw.
	storedSigs := make([][]byte, len(outpoints))
	numStored := 0
	for i, outpoint := range outpoints {
		sig, err := store.Lookup(outpoint)
		if err != nil {
			return nil, fmt.Errorf("looking up outpoint '%s': %w", outpoint, err)
		}
		if sig != nil {
			storedSigs[i] = sig
			numStored++
		}
	}

	ourPubkey := privKey.PubKey().SerializeCompressed()

	switch {
	// Full replay: hand back exactly the signatures we produced the first
	// time, making the response idempotent under retransmission. If the
	// unsigned parts of the transaction were altered since, attaching the
	// stored signature fails verification and we refuse.
	case numStored == len(outpoints):
		for i, sig := range storedSigs {
			if err := tx.AddSignature(i, ourPubkey, sig); err != nil {
				if errors.Is(err, spendtx.ErrInvalidSignature) ||
					errors.Is(err, spendtx.ErrDuplicateSignature) ||
					errors.Is(err, spendtx.ErrMissingInputInfo) {
					log.Warnf("Stored signature for outpoint '%s' does not match "+
						"the submitted transaction: %s", outpoints[i], err)
					return refused(), nil
				}
				return nil, err
			}
		}
		return &SignResult{Outcome: OutcomeSigned, Tx: tx}, nil

	// Partial overlap: mixing an already-committed outpoint with new ones
	// is exactly the shape of an attempt to get a second, conflicting
	// spend partially co-signed. Total refusal, no new signature, no
	// ledger write.
	case numStored > 0:
		log.Warnf("Refusing to sign: %d of %d outpoints were already signed",
			numStored, len(outpoints))
		return refused(), nil
	}

	// Fresh request: sign all inputs in memory first, then persist all the
	// (outpoint, signature) pairs atomically, and only then release the
	// signed transaction.
	// Compute every sighash before signing anything, so a request with a
	// missing-data input aborts without a single signature produced.
	hashes := make([][]byte, len(outpoints))
	for i := range outpoints {
		hash, err := tx.SigHash(i)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		hashes[i] = hash
	}

	signed := make([]database.SignedOutpoint, 0, len(outpoints))
	for i := range outpoints {
		sig := append(ecdsa.Sign(privKey, hashes[i]).Serialize(),
			byte(txscript.SigHashAll))

		if err := tx.AddSignature(i, ourPubkey, sig); err != nil {
			// We just checked no outpoint was signed before, so a
			// collision on our own key means two code paths signed the
			// same input in the same call.
			if errors.Is(err, spendtx.ErrDuplicateSignature) {
				return nil, fmt.Errorf("internal invariant broken on input %d: %w",
					i, err)
			}
			return nil, fmt.Errorf("attaching signature to input %d: %w", i, err)
		}

		signed = append(signed, database.SignedOutpoint{
			Outpoint:  outpoints[i],
			Signature: sig,
		})
	}

	if err := store.RecordMany(signed); err != nil {
		if errors.Is(err, database.ErrOutpointExists) {
			return nil, fmt.Errorf("internal invariant broken: %w", err)
		}
		return nil, fmt.Errorf("recording signed outpoints: %w", err)
	}

	return &SignResult{Outcome: OutcomeSigned, Tx: tx}, nil
}
