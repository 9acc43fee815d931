package testutil

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestBuilderSanity(t *testing.T) {
	builder := NewBuilder(t)

	tx := builder.SpendTx(t, []wire.OutPoint{
		Outpoint(t, "2b8930127e9dfd1bcdf35df2bc7f3b8cdbec083b1ae693f36b6305fccd1425da:0"),
		Outpoint(t, "ceca4de398c63b29543f8346c09fd7522fd8661ce8bdc0e454e8d6ed8ad46a0d:1"),
		Outpoint(t, "0b38682347207cd79de33edf8897a75abe7d8799b194439150306773b6aef55a:189"),
	})

	require.Equal(t, 3, tx.NumInputs())
	require.False(t, tx.IsFinalized())
	for i := 0; i < 3; i++ {
		require.Zero(t, tx.InputSigCount(i))
		hash, err := tx.SigHash(i)
		require.NoError(t, err)
		require.Len(t, hash, 32)
	}
}
