package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
)

var (
	errFailedToAppendCACert = errors.New("no PEM certificates found")
	errMissingTLSKey        = errors.New("a TLS certificate requires a matching key")
)

// Returns the system certificate pool extended with the PEM certificates in
// each of cacerts, or nil when cacerts is empty so that crypto/tls falls back
// to its own defaults.
func newCACertPool(cacerts []string) (*x509.CertPool, error) {
	if len(cacerts) == 0 {
		return nil, nil
	}
	logger.V(1).Info("Loading CA certificates", "cacerts", cacerts)
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("failed to load system certificate pool: %w", err)
	}
	for _, cacert := range cacerts {
		pem, err := os.ReadFile(cacert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate %s: %w", cacert, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to add CA certificate %s: %w", cacert, errFailedToAppendCACert)
		}
	}
	return pool, nil
}

// Returns a TLS 1.2+ configuration that presents the certificate and key pair,
// if one is given.
func newTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	tlsConf := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if certFile == "" {
		return tlsConf, nil
	}
	if keyFile == "" {
		return nil, fmt.Errorf("failed to load certificate %s: %w", certFile, errMissingTLSKey)
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate %s and key %s: %w", certFile, keyFile, err)
	}
	tlsConf.Certificates = []tls.Certificate{cert}
	return tlsConf, nil
}

// Builds PrimeService server credentials. The result is nil when no certificate
// is given, leaving the server in plaintext. Client certificates are verified
// against cacerts when presented, and demanded when requireClientCert is set.
func newServerTLSCredentials(certFile, keyFile string, cacerts []string, requireClientCert bool) (credentials.TransportCredentials, error) {
	logger := logger.V(1).WithValues("certFile", certFile, "keyFile", keyFile, "cacerts", cacerts, "requireClientCert", requireClientCert)
	if certFile == "" {
		logger.V(0).Info("No server certificate provided; gRPC server will not use TLS")
		return nil, nil
	}
	logger.Info("Preparing server TLS credentials")
	tlsConf, err := newTLSConfig(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	tlsConf.ClientCAs, err = newCACertPool(cacerts)
	if err != nil {
		return nil, err
	}
	switch {
	case requireClientCert:
		tlsConf.ClientAuth = tls.RequireAndVerifyClientCert
	case tlsConf.ClientCAs != nil:
		tlsConf.ClientAuth = tls.VerifyClientCertIfGiven
	default:
		tlsConf.ClientAuth = tls.NoClientCert
	}
	return credentials.NewTLS(tlsConf), nil
}

// Builds TLS credentials for connections to a PrimeService or an OpenTelemetry
// collector. Servers are verified against cacerts, or the system roots when
// none are given; authority overrides the name expected in the server
// certificate.
func newClientTLSCredentials(certFile, keyFile, authority string, cacerts []string) (credentials.TransportCredentials, error) {
	logger.V(1).Info("Preparing client TLS credentials", "certFile", certFile, "keyFile", keyFile, "authority", authority, "cacerts", cacerts)
	tlsConf, err := newTLSConfig(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	tlsConf.RootCAs, err = newCACertPool(cacerts)
	if err != nil {
		return nil, err
	}
	tlsConf.ServerName = authority
	return credentials.NewTLS(tlsConf), nil
}
