package server

import (
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/brontide"
	"github.com/lightningnetwork/lnd/keychain"
	"github.com/lightningnetwork/lnd/lnwire"

	"github.com/revault/cosignerd/spendtx"
	"github.com/revault/cosignerd/wire"
)

// Client is a manager-side handle to a cosigning server. One connection
// carries exactly one request/response exchange.
type Client struct {
	conn *brontide.Conn
}

// Dial establishes the authenticated channel with the cosigning server at
// addr, which must present serverPub as its static key.
func Dial(localKey *btcec.PrivateKey, serverPub *btcec.PublicKey,
	addr string, timeout time.Duration) (*Client, error) {

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving '%s': %w", addr, err)
	}

	conn, err := brontide.Dial(
		&keychain.PrivKeyECDH{PrivKey: localKey},
		&lnwire.NetAddress{IdentityKey: serverPub, Address: tcpAddr},
		timeout, net.DialTimeout,
	)
	if err != nil {
		return nil, fmt.Errorf("dialing cosigner: %w", err)
	}

	return &Client{conn: conn}, nil
}

// RequestSignature submits the spend transaction and returns the signed
// transaction, or nil if the server refused to sign.
func (c *Client) RequestSignature(tx *spendtx.SpendTx) (*spendtx.SpendTx, error) {
	txBase64, err := tx.Base64()
	if err != nil {
		return nil, err
	}
	frame, err := wire.EncodeSignRequest(txBase64)
	if err != nil {
		return nil, err
	}

	if err := c.conn.WriteMessage(frame); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if _, err := c.conn.Flush(); err != nil {
		return nil, fmt.Errorf("flushing request: %w", err)
	}

	resp, err := c.conn.ReadNextMessage()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	signedTx, err := wire.DecodeSignResponse(resp)
	if err != nil {
		return nil, err
	}
	if signedTx == nil {
		return nil, nil
	}
	return spendtx.FromBase64(*signedTx)
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}
