package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestDialOptions(t *testing.T) {
	opts, err := DialOptions(DefaultOptions())
	require.NoError(t, err)
	// keepalive, credentials and message size limits
	assert.Len(t, opts, 3)

	noLimit := DefaultOptions()
	noLimit.MaxMessageSize = 0
	opts, err = DialOptions(noLimit)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestTLSRequiresFiles(t *testing.T) {
	options := DefaultOptions()
	options.TLSEnabled = true

	_, err := ServerOptions(options)
	assert.ErrorIs(t, err, ErrInvalidTLS)

	options.CertFile = "missing.crt"
	options.KeyFile = "missing.key"
	_, err = ServerOptions(options)
	assert.ErrorIs(t, err, ErrInvalidTLS)

	options.CAFile = "missing-ca.crt"
	_, err = DialOptions(options)
	assert.ErrorIs(t, err, ErrInvalidTLS)
}

// writeSelfSigned writes a self-signed certificate and its key as PEM files
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certFile, keyFile
}

func TestTLSConfigs(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)

	options := DefaultOptions()
	options.CertFile = certFile
	options.KeyFile = keyFile

	serverCfg, err := options.ServerTLSConfig()
	require.NoError(t, err)
	assert.Len(t, serverCfg.Certificates, 1)
	assert.Equal(t, tls.NoClientCert, serverCfg.ClientAuth)
	assert.Equal(t, uint16(tls.VersionTLS12), serverCfg.MinVersion)

	options.CAFile = certFile
	serverCfg, err = options.ServerTLSConfig()
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, serverCfg.ClientAuth)
	assert.NotNil(t, serverCfg.ClientCAs)

	clientCfg, err := options.ClientTLSConfig()
	require.NoError(t, err)
	assert.NotNil(t, clientCfg.RootCAs)
	assert.Len(t, clientCfg.Certificates, 1)

	notPEM := filepath.Join(dir, "ca.txt")
	require.NoError(t, os.WriteFile(notPEM, []byte("not a certificate"), 0600))
	options.CAFile = notPEM
	_, err = options.ClientTLSConfig()
	assert.ErrorIs(t, err, ErrInvalidTLS)
}

func TestServerLifecycle(t *testing.T) {
	registered := false
	server, err := NewServer(DefaultOptions(), log.NewNopLogger(), func(grpc.ServiceRegistrar) {
		registered = true
	})
	require.NoError(t, err)
	assert.True(t, registered)
	assert.Nil(t, server.Addr())

	require.NoError(t, server.Start("127.0.0.1:0"))
	addr := server.Addr()
	require.NotNil(t, addr)

	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	conn.Close()

	assert.ErrorIs(t, server.Start("127.0.0.1:0"), ErrServerStarted)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx))
}
