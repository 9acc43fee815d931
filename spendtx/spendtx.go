// Package spendtx wraps a partially-signed Spend transaction with the
// exact capability set the signing logic needs: enumerate the spent
// outpoints, tell whether the transaction is finalized, compute per-input
// signature hashes, and attach signatures under verification.
package spendtx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrMissingInputInfo is returned when a signature hash cannot be
	// computed because the input lacks its witness UTXO or witness script.
	ErrMissingInputInfo = errors.New("input is missing witness information")

	// ErrInvalidSignature is returned when a signature to be attached does
	// not verify against the input's current signature hash.
	ErrInvalidSignature = errors.New("signature does not verify against input sighash")

	// ErrDuplicateSignature is returned when attaching a signature for a
	// public key that already has one on this input.
	ErrDuplicateSignature = errors.New("input already carries a signature for this key")
)

// SpendTx is an in-memory candidate Spend transaction, owned exclusively
// by one request for its duration.
type SpendTx struct {
	packet *psbt.Packet
}

// FromBytes decodes a binary-serialized PSBT.
func FromBytes(raw []byte) (*SpendTx, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, fmt.Errorf("decoding psbt: %w", err)
	}
	return &SpendTx{packet: packet}, nil
}

// FromBase64 decodes a base64-serialized PSBT.
func FromBase64(s string) (*SpendTx, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(s), true)
	if err != nil {
		return nil, fmt.Errorf("decoding psbt: %w", err)
	}
	return &SpendTx{packet: packet}, nil
}

// FromPacket wraps an already-decoded PSBT packet.
func FromPacket(packet *psbt.Packet) *SpendTx {
	return &SpendTx{packet: packet}
}

// Bytes returns the binary PSBT serialization.
func (s *SpendTx) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.packet.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("encoding psbt: %w", err)
	}
	return buf.Bytes(), nil
}

// Base64 returns the base64 PSBT serialization.
func (s *SpendTx) Base64() (string, error) {
	return s.packet.B64Encode()
}

// NumInputs returns the number of inputs of the transaction.
func (s *SpendTx) NumInputs() int {
	return len(s.packet.UnsignedTx.TxIn)
}

// Outpoints returns the previous outputs spent by the transaction, in
// input order.
func (s *SpendTx) Outpoints() []wire.OutPoint {
	outpoints := make([]wire.OutPoint, 0, len(s.packet.UnsignedTx.TxIn))
	for _, txIn := range s.packet.UnsignedTx.TxIn {
		outpoints = append(outpoints, txIn.PreviousOutPoint)
	}
	return outpoints
}

// IsFinalized tells whether the transaction was finalized: its signature
// hashes can then no longer be meaningfully recomputed, and a legitimate
// requester would never submit one.
func (s *SpendTx) IsFinalized() bool {
	if s.packet.IsComplete() {
		return true
	}
	for _, in := range s.packet.Inputs {
		if in.FinalScriptSig != nil || in.FinalScriptWitness != nil {
			return true
		}
	}
	return false
}

// SigHash computes the BIP-143 SIGHASH_ALL digest for the given input.
func (s *SpendTx) SigHash(index int) ([]byte, error) {
	in := &s.packet.Inputs[index]
	if in.WitnessUtxo == nil || in.WitnessScript == nil {
		return nil, fmt.Errorf("%w: input %d", ErrMissingInputInfo, index)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range s.packet.UnsignedTx.TxIn {
		if utxo := s.packet.Inputs[i].WitnessUtxo; utxo != nil {
			fetcher.AddPrevOut(txIn.PreviousOutPoint, utxo)
		}
	}
	sigHashes := txscript.NewTxSigHashes(s.packet.UnsignedTx, fetcher)

	hash, err := txscript.CalcWitnessSigHash(
		in.WitnessScript, sigHashes, txscript.SigHashAll,
		s.packet.UnsignedTx, index, in.WitnessUtxo.Value,
	)
	if err != nil {
		return nil, fmt.Errorf("computing sighash for input %d: %w", index, err)
	}

	return hash, nil
}

// AddSignature attaches a (public key, signature) pair to the given input.
// The signature is expected DER-encoded with the sighash type byte
// appended. The input's signature hash is re-derived and the signature
// verified before insertion: a transaction whose unsigned parts were
// altered after we first signed it will fail here.
func (s *SpendTx) AddSignature(index int, pubKey, signature []byte) error {
	if len(signature) < 9 {
		return fmt.Errorf("%w: signature too short", ErrInvalidSignature)
	}
	if signature[len(signature)-1] != byte(txscript.SigHashAll) {
		return fmt.Errorf("%w: unexpected sighash type 0x%x",
			ErrInvalidSignature, signature[len(signature)-1])
	}

	hash, err := s.SigHash(index)
	if err != nil {
		return err
	}

	sig, err := ecdsa.ParseDERSignature(signature[:len(signature)-1])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	if !sig.Verify(hash, pub) {
		return fmt.Errorf("%w: input %d", ErrInvalidSignature, index)
	}

	in := &s.packet.Inputs[index]
	for _, partialSig := range in.PartialSigs {
		if bytes.Equal(partialSig.PubKey, pubKey) {
			return fmt.Errorf("%w: input %d", ErrDuplicateSignature, index)
		}
	}
	in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
		PubKey:    pubKey,
		Signature: signature,
	})

	return nil
}

// InputSigCount returns the number of partial signatures carried by the
// given input.
func (s *SpendTx) InputSigCount(index int) int {
	return len(s.packet.Inputs[index].PartialSigs)
}

// InputSignature returns the signature carried by the given input for the
// given public key, or nil.
func (s *SpendTx) InputSignature(index int, pubKey []byte) []byte {
	for _, partialSig := range s.packet.Inputs[index].PartialSigs {
		if bytes.Equal(partialSig.PubKey, pubKey) {
			return partialSig.Signature
		}
	}
	return nil
}

// Packet exposes the underlying PSBT packet.
func (s *SpendTx) Packet() *psbt.Packet {
	return s.packet
}
