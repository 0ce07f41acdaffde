// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lucas-clemente/quic-go"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

// quicProto is the ALPN identifier both sides must agree on.
const quicProto = "wireflow"

// quicHandshakeTimeout bounds opening or accepting the link's stream.
const quicHandshakeTimeout = 5 * time.Second

// generateListenerTLSConfig generates a bare-bones TLS config for the
// listener. This uses a self-signed certificate, so the dialer will have to
// ignore verification issues.
func generateListenerTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating private key failed: %w", err)
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("generating certificate failed: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("generating combined certificate failed: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{quicProto},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// generateDialerTLSConfig generates a bare-bones TLS config for the dialer.
// This configuration assumes that the listener is using a self-signed
// certificate and thus does not verify it.
func generateDialerTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicProto},
	}
}

func generateQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 1 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

// quicStreamConn bundles a QUIC stream with its session, so closing the Link
// also closes the session.
type quicStreamConn struct {
	quic.Stream
	session quic.Connection
}

func (conn *quicStreamConn) Close() error {
	_ = conn.Stream.Close()
	return conn.session.CloseWithError(0, "link closed")
}

// NewQUICLink creates a dialer-side Link to the given QUIC address. The
// Link's single bidirectional stream feeds the same Tokenizer a TCP Link
// would use.
func NewQUICLink(address, nodeName string, inQuota flow.Rate, permanent bool) *Link {
	link := newLink("quic", address, nodeName, inQuota, permanent)
	link.dialer = true
	link.dial = func() (io.ReadWriteCloser, error) {
		session, err := quic.DialAddr(address, generateDialerTLSConfig(), generateQUICConfig())
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), quicHandshakeTimeout)
		defer cancel()

		stream, err := session.OpenStreamSync(ctx)
		if err != nil {
			_ = session.CloseWithError(0, "no stream")
			return nil, err
		}

		return &quicStreamConn{Stream: stream, session: session}, nil
	}
	return link
}

// QUICListener accepts QUIC sessions and hands them to its Manager as
// listener-side Links. This struct implements a ConnectionProvider.
type QUICListener struct {
	listenAddress string
	nodeName      string
	inQuota       flow.Rate

	manager  *Manager
	listener quic.Listener
}

// NewQUICListener creates a QUICListener for the given listen address.
func NewQUICListener(listenAddress, nodeName string, inQuota flow.Rate) *QUICListener {
	return &QUICListener{
		listenAddress: listenAddress,
		nodeName:      nodeName,
		inQuota:       inQuota,
	}
}

// RegisterManager tells the QUICListener where to report new Links to.
func (listener *QUICListener) RegisterManager(manager *Manager) {
	listener.manager = manager
}

// Start opens the listening socket and begins accepting sessions.
func (listener *QUICListener) Start() error {
	tlsConf, err := generateListenerTLSConfig()
	if err != nil {
		return err
	}

	ln, err := quic.ListenAddr(listener.listenAddress, tlsConf, generateQUICConfig())
	if err != nil {
		return err
	}

	listener.listener = ln
	go listener.handle()

	return nil
}

func (listener *QUICListener) handle() {
	for {
		session, err := listener.listener.Accept(context.Background())
		if err != nil {
			log.WithFields(log.Fields{
				"listener": listener,
				"error":    err,
			}).Debug("QUICListener stopped accepting")
			return
		}

		log.WithFields(log.Fields{
			"listener": listener,
			"peer":     session.RemoteAddr(),
		}).Debug("QUICListener accepted a session")

		go listener.acceptStream(session)
	}
}

// acceptStream waits for the dialer to open the link's stream and registers
// the resulting Link.
func (listener *QUICListener) acceptStream(session quic.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), quicHandshakeTimeout)
	defer cancel()

	stream, err := session.AcceptStream(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"listener": listener,
			"peer":     session.RemoteAddr(),
			"error":    err,
		}).Warn("QUICListener's peer opened no stream")

		_ = session.CloseWithError(0, "no stream")
		return
	}

	conn := &quicStreamConn{Stream: stream, session: session}
	link := newConnLink(conn, "quic", session.RemoteAddr().String(),
		listener.nodeName, listener.inQuota)
	listener.manager.Register(link)
}

// Close shuts the QUICListener down.
func (listener *QUICListener) Close() error {
	if listener.listener == nil {
		return nil
	}
	return listener.listener.Close()
}

func (listener QUICListener) String() string {
	return fmt.Sprintf("quic://%s", listener.listenAddress)
}
