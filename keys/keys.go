package keys

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/sirupsen/logrus"
)

// Both keys are hot for now. The channel key only authenticates the
// transport so we generate it ourselves on first run; the Bitcoin key is
// part of the on-chain Script and is provisioned during the setup ceremony,
// so it must already exist.

// ReadOrCreateChannelKey loads the secure-channel static key from
// secretFile, generating a fresh one with read-only owner permissions if
// the file does not exist yet.
func ReadOrCreateChannelKey(secretFile string) (*btcec.PrivateKey, error) {
	if _, err := os.Stat(secretFile); os.IsNotExist(err) {
		log.Infof("No channel private key at '%s', generating a new one", secretFile)

		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generating channel key: %w", err)
		}

		fd, err := os.OpenFile(secretFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0400)
		if err != nil {
			return nil, fmt.Errorf("creating channel key file: %w", err)
		}
		defer fd.Close()
		if _, err := fd.Write(priv.Serialize()); err != nil {
			return nil, fmt.Errorf("writing channel key file: %w", err)
		}

		return priv, nil
	}

	fd, err := os.Open(secretFile)
	if err != nil {
		return nil, fmt.Errorf("opening channel key file: %w", err)
	}
	defer fd.Close()

	var buf [32]byte
	if _, err := io.ReadFull(fd, buf[:]); err != nil {
		return nil, fmt.Errorf("reading channel key file: %w", err)
	}

	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	return priv, nil
}

// ReadBitcoinKey loads the Bitcoin signing key from secretFile. The file
// must contain exactly 32 bytes forming a valid secp256k1 scalar.
func ReadBitcoinKey(secretFile string) (*btcec.PrivateKey, error) {
	fd, err := os.Open(secretFile)
	if err != nil {
		return nil, fmt.Errorf("opening bitcoin key file: %w", err)
	}
	defer fd.Close()

	// 0xffff....ffff is not a valid scalar, so a short read can never
	// produce a usable key.
	buf := [32]byte{}
	for i := range buf {
		buf[i] = 0xff
	}
	if _, err := io.ReadFull(fd, buf[:]); err != nil {
		return nil, fmt.Errorf("reading bitcoin key file: %w", err)
	}

	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	// PrivKeyFromBytes reduces out-of-range scalars mod the curve order, so
	// round-trip the bytes to reject a file that does not hold a valid key.
	if priv.Key.IsZero() || !bytes.Equal(priv.Serialize(), buf[:]) {
		return nil, fmt.Errorf("file '%s' does not contain a valid secp256k1 key", secretFile)
	}

	return priv, nil
}
