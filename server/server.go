// Package server runs the cosigning server's session loop: one
// authenticated connection at a time, one request per connection, one
// decision engine invocation in flight ever.
package server

import (
	"context"
	"net"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/brontide"
	"github.com/lightningnetwork/lnd/keychain"
	log "github.com/sirupsen/logrus"

	"github.com/revault/cosignerd/database"
	"github.com/revault/cosignerd/processing"
	"github.com/revault/cosignerd/spendtx"
	"github.com/revault/cosignerd/wire"
)

// DefaultSessionTimeout bounds how long a peer may take to deliver its
// request or accept our response. A hung peer must never block the accept
// loop forever.
const DefaultSessionTimeout = 30 * time.Second

// Config carries everything the session loop needs. All of it is read-only
// after startup.
type Config struct {
	// Listen is the TCP address to bind the secure channel listener to.
	Listen string

	// ChannelKey is our secure-channel static key.
	ChannelKey *btcec.PrivateKey

	// BitcoinKey is the key we co-sign Spend transactions with.
	BitcoinKey *btcec.PrivateKey

	// Managers is the allow-list of peer static public keys.
	Managers []*btcec.PublicKey

	// Store is the signed-outpoint ledger.
	Store database.SignedOutpointStorage

	// SessionTimeout overrides DefaultSessionTimeout when non-zero.
	SessionTimeout time.Duration
}

// Server accepts manager connections and processes sign requests strictly
// sequentially.
type Server struct {
	cfg      Config
	timeout  time.Duration
	listener *brontide.Listener
}

// New returns a Server ready to Run.
func New(cfg Config) *Server {
	timeout := cfg.SessionTimeout
	if timeout == 0 {
		timeout = DefaultSessionTimeout
	}
	return &Server{cfg: cfg, timeout: timeout}
}

// Listen binds the secure channel listener. It is called by Run if the
// caller did not need the bound address beforehand.
func (s *Server) Listen() error {
	listener, err := brontide.NewListener(
		&keychain.PrivKeyECDH{PrivKey: s.cfg.ChannelKey}, s.cfg.Listen,
	)
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

// Run services connections until ctx is cancelled. Request volume is a few
// human-paced spend attempts, so connections are deliberately treated one
// after the other: this is what makes the ledger's lock-free
// check-then-insert sound.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	log.Infof("Listening for managers on %s", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Covers handshake failures too: log, drop, keep accepting.
			log.Errorf("Error accepting connection: %s", err)
			continue
		}

		s.handleSession(conn)
	}
}

// Addr returns the bound listener address, for tests binding to port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// handleSession reads exactly one request from an authenticated
// connection, invokes the decision engine, and writes back exactly one
// response. Every failure logs and drops the connection; none may kill the
// process.
func (s *Server) handleSession(conn net.Conn) {
	defer conn.Close()

	bconn, ok := conn.(*brontide.Conn)
	if !ok {
		log.Errorf("Unexpected connection type %T", conn)
		return
	}

	remote := bconn.RemotePub()
	if !s.isManager(remote) {
		log.Warnf("Dropping connection from unknown peer '%x'",
			remote.SerializeCompressed())
		return
	}
	peerLog := log.WithField("peer", remote.SerializeCompressed())

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		peerLog.Errorf("Setting session deadline: %s", err)
		return
	}

	frame, err := bconn.ReadNextMessage()
	if err != nil {
		peerLog.Errorf("Error reading request: %s", err)
		return
	}

	txBase64, err := wire.DecodeSignRequest(frame)
	if err != nil {
		peerLog.Errorf("Error decoding request: %s", err)
		return
	}

	tx, err := spendtx.FromBase64(txBase64)
	if err != nil {
		peerLog.Errorf("Error decoding spend transaction: %s", err)
		return
	}

	res, err := processing.Process(s.cfg.Store, tx, s.cfg.BitcoinKey)
	if err != nil {
		peerLog.Errorf("Error processing sign request: %s", err)
		return
	}
	// Malformed requests get no response at all, only a dropped
	// connection. Refusals do get the null result: they are a legitimate
	// protocol outcome.
	if res.Outcome == processing.OutcomeGarbage {
		peerLog.Warn("Dropping connection carrying a malformed sign request")
		return
	}

	var signedTx *string
	if res.Outcome == processing.OutcomeSigned {
		encoded, err := res.Tx.Base64()
		if err != nil {
			peerLog.Errorf("Error encoding signed transaction: %s", err)
			return
		}
		signedTx = &encoded
	}

	out, err := wire.EncodeSignResponse(signedTx)
	if err != nil {
		peerLog.Errorf("Error encoding response: %s", err)
		return
	}
	if err := bconn.WriteMessage(out); err != nil {
		peerLog.Errorf("Error writing response: %s", err)
		return
	}
	if _, err := bconn.Flush(); err != nil {
		peerLog.Errorf("Error flushing response: %s", err)
	}
}

func (s *Server) isManager(pub *btcec.PublicKey) bool {
	for _, manager := range s.cfg.Managers {
		if manager.IsEqual(pub) {
			return true
		}
	}
	return false
}
