// Package testutil fabricates spend transactions and keys for tests.
package testutil

import (
	"crypto/sha256"
	"strconv"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/revault/cosignerd/spendtx"
)

const unvaultValue = 100_000_000

// Builder holds the keys of a simulated deployment and fabricates spend
// transactions over arbitrary outpoints. The witness script is stable for
// the lifetime of the builder, so two transactions spending the same
// outpoint share input shapes and only differ where the test wants them
// to.
type Builder struct {
	// BitcoinKey is the cosigner's signing key.
	BitcoinKey *btcec.PrivateKey

	// unvaultKey stands in for the deposit's script key.
	unvaultKey *btcec.PrivateKey

	witnessScript []byte
	pkScript      []byte
}

// NewBuilder generates fresh keys and the unvault scripts.
func NewBuilder(t *testing.T) *Builder {
	bitcoinKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	unvaultKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	witnessScript, err := txscript.NewScriptBuilder().
		AddData(unvaultKey.PubKey().SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	scriptHash := sha256.Sum256(witnessScript)
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash[:]).
		Script()
	require.NoError(t, err)

	return &Builder{
		BitcoinKey:    bitcoinKey,
		unvaultKey:    unvaultKey,
		witnessScript: witnessScript,
		pkScript:      pkScript,
	}
}

// SpendTx builds an unsigned spend transaction over the given outpoints,
// with witness data attached so per-input sighashes are computable.
func (b *Builder) SpendTx(t *testing.T, outpoints []wire.OutPoint) *spendtx.SpendTx {
	return b.SpendTxPaying(t, outpoints,
		unvaultValue*int64(len(outpoints))-50_000*int64(len(outpoints)))
}

// SpendTxPaying is SpendTx with an explicit output value, so tests can
// fabricate a conflicting transaction over the same outpoints.
func (b *Builder) SpendTxPaying(t *testing.T, outpoints []wire.OutPoint,
	value int64) *spendtx.SpendTx {

	ins := make([]*wire.OutPoint, len(outpoints))
	sequences := make([]uint32, len(outpoints))
	for i := range outpoints {
		outpoint := outpoints[i]
		ins[i] = &outpoint
		sequences[i] = 12
	}
	outs := []*wire.TxOut{{Value: value, PkScript: b.pkScript}}

	packet, err := psbt.New(ins, outs, 2, 0, sequences)
	require.NoError(t, err)

	for i := range packet.Inputs {
		packet.Inputs[i].WitnessUtxo = &wire.TxOut{
			Value:    unvaultValue,
			PkScript: b.pkScript,
		}
		packet.Inputs[i].WitnessScript = b.witnessScript
		packet.Inputs[i].SighashType = txscript.SigHashAll
	}

	return spendtx.FromPacket(packet)
}

// SpendTxMissingWitness builds a spend transaction whose input at
// missingIndex lacks its witness UTXO, making sighash computation fail.
func (b *Builder) SpendTxMissingWitness(t *testing.T, outpoints []wire.OutPoint,
	missingIndex int) *spendtx.SpendTx {

	tx := b.SpendTx(t, outpoints)
	tx.Packet().Inputs[missingIndex].WitnessUtxo = nil
	return tx
}

// Outpoint parses a "txid:vout" string.
func Outpoint(t *testing.T, s string) wire.OutPoint {
	parts := strings.Split(s, ":")
	require.Len(t, parts, 2)

	hash, err := chainhash.NewHashFromStr(parts[0])
	require.NoError(t, err)
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	require.NoError(t, err)

	return wire.OutPoint{Hash: *hash, Index: uint32(vout)}
}
