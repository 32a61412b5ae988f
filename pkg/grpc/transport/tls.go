package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidTLS is wrapped by every TLS setup failure
var ErrInvalidTLS = errors.New("invalid TLS configuration")

func baseTLSConfig() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read CA certificate: %v", ErrInvalidTLS, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidTLS, caFile)
	}
	return pool, nil
}

func loadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: load key pair: %v", ErrInvalidTLS, err)
	}
	return cert, nil
}

// ServerTLSConfig builds the server side TLS configuration. A CAFile turns on
// mutual TLS: clients must present a certificate signed by it.
func (o Options) ServerTLSConfig() (*tls.Config, error) {
	if o.CertFile == "" || o.KeyFile == "" {
		return nil, fmt.Errorf("%w: server needs both certificate and key files", ErrInvalidTLS)
	}

	cert, err := loadKeyPair(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := baseTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}

	if o.CAFile != "" {
		if cfg.ClientCAs, err = loadCertPool(o.CAFile); err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// ClientTLSConfig builds the client side TLS configuration. The certificate
// pair is optional; CAFile replaces the system roots.
func (o Options) ClientTLSConfig() (*tls.Config, error) {
	cfg := baseTLSConfig()
	cfg.InsecureSkipVerify = o.SkipVerify

	if o.CertFile != "" && o.KeyFile != "" {
		cert, err := loadKeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if o.CAFile != "" {
		pool, err := loadCertPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
