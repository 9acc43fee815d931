package spendtx_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/revault/cosignerd/spendtx"
	"github.com/revault/cosignerd/testutil"
)

func signInput(t *testing.T, builder *testutil.Builder, tx *spendtx.SpendTx,
	index int) []byte {

	hash, err := tx.SigHash(index)
	require.NoError(t, err)
	return append(ecdsa.Sign(builder.BitcoinKey, hash).Serialize(),
		byte(txscript.SigHashAll))
}

func testOutpoints(t *testing.T) []wire.OutPoint {
	return []wire.OutPoint{
		testutil.Outpoint(t, "2b8930127e9dfd1bcdf35df2bc7f3b8cdbec083b1ae693f36b6305fccd1425da:0"),
		testutil.Outpoint(t, "ceca4de398c63b29543f8346c09fd7522fd8661ce8bdc0e454e8d6ed8ad46a0d:1"),
	}
}

func TestOutpointsOrder(t *testing.T) {
	builder := testutil.NewBuilder(t)
	outpoints := testOutpoints(t)

	tx := builder.SpendTx(t, outpoints)
	require.Equal(t, 2, tx.NumInputs())
	require.Equal(t, outpoints, tx.Outpoints())
}

func TestSerializationRoundtrip(t *testing.T) {
	builder := testutil.NewBuilder(t)
	tx := builder.SpendTx(t, testOutpoints(t))

	encoded, err := tx.Base64()
	require.NoError(t, err)
	decoded, err := spendtx.FromBase64(encoded)
	require.NoError(t, err)
	require.Equal(t, tx.Outpoints(), decoded.Outpoints())

	raw, err := tx.Bytes()
	require.NoError(t, err)
	decoded, err = spendtx.FromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, tx.Outpoints(), decoded.Outpoints())
}

func TestIsFinalized(t *testing.T) {
	builder := testutil.NewBuilder(t)

	tx := builder.SpendTx(t, testOutpoints(t))
	require.False(t, tx.IsFinalized())

	tx.Packet().Inputs[1].FinalScriptWitness = []byte{0x01, 0x00}
	require.True(t, tx.IsFinalized())
}

func TestSigHashMissingWitness(t *testing.T) {
	builder := testutil.NewBuilder(t)

	tx := builder.SpendTxMissingWitness(t, testOutpoints(t), 0)
	_, err := tx.SigHash(0)
	require.ErrorIs(t, err, spendtx.ErrMissingInputInfo)

	// The other input still computes.
	_, err = tx.SigHash(1)
	require.NoError(t, err)
}

func TestAddSignatureVerifies(t *testing.T) {
	builder := testutil.NewBuilder(t)
	tx := builder.SpendTx(t, testOutpoints(t))
	pubKey := builder.BitcoinKey.PubKey().SerializeCompressed()

	sig := signInput(t, builder, tx, 0)
	require.NoError(t, tx.AddSignature(0, pubKey, sig))
	require.Equal(t, 1, tx.InputSigCount(0))
	require.Equal(t, sig, tx.InputSignature(0, pubKey))

	// A second signature for the same key on the same input is a caller
	// bug.
	err := tx.AddSignature(0, pubKey, sig)
	require.ErrorIs(t, err, spendtx.ErrDuplicateSignature)
	require.Equal(t, 1, tx.InputSigCount(0))
}

func TestAddSignatureRejectsMismatch(t *testing.T) {
	builder := testutil.NewBuilder(t)
	outpoints := testOutpoints(t)
	pubKey := builder.BitcoinKey.PubKey().SerializeCompressed()

	tx := builder.SpendTx(t, outpoints)
	sig := signInput(t, builder, tx, 0)

	// Same outpoints, different output value: the old signature no longer
	// matches the sighash.
	tampered := builder.SpendTxPaying(t, outpoints, 31_337)
	err := tampered.AddSignature(0, pubKey, sig)
	require.ErrorIs(t, err, spendtx.ErrInvalidSignature)
	require.Zero(t, tampered.InputSigCount(0))

	// A signature valid for input 0 does not verify on input 1.
	err = tx.AddSignature(1, pubKey, sig)
	require.ErrorIs(t, err, spendtx.ErrInvalidSignature)

	// Wrong sighash type byte.
	badType := append(append([]byte{}, sig[:len(sig)-1]...),
		byte(txscript.SigHashSingle))
	err = tx.AddSignature(0, pubKey, badType)
	require.ErrorIs(t, err, spendtx.ErrInvalidSignature)

	// Not DER at all.
	err = tx.AddSignature(0, pubKey, []byte{0x01, 0x02, 0x03, 0x04, 0x05,
		0x06, 0x07, 0x08, byte(txscript.SigHashAll)})
	require.ErrorIs(t, err, spendtx.ErrInvalidSignature)
}
