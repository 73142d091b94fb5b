// Package testutil provides TLS material and socket addresses for
// tests of the servers.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Names of the files CreateTLSCert writes.
const (
	CertFile = "server.pem"
	KeyFile  = "server.key"
)

// CreateTLSCert writes a self-signed certificate for localhost and
// 127.0.0.1, and its key, to dir.
func CreateTLSCert(dir string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(1 * time.Hour)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return err
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"keywitness test"},
			CommonName:   "localhost",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	if err := os.WriteFile(filepath.Join(dir, CertFile), certPEM, 0644); err != nil {
		return err
	}

	b, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	return os.WriteFile(filepath.Join(dir, KeyFile), keyPEM, 0600)
}

// CreateTLSCertForTest creates the certificate in a temporary
// directory that is removed with the test, and returns the directory.
func CreateTLSCertForTest(t testing.TB) string {
	dir := t.TempDir()
	if err := CreateTLSCert(dir); err != nil {
		t.Fatal(err)
	}
	return dir
}

// TCPAddress returns a tcp:// address on a free local port.
func TCPAddress(t testing.TB) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return "tcp://" + ln.Addr().String()
}

// UnixAddress returns a unix:// address in a temporary directory.
// Socket paths are short, so the directory is created under the
// system's temp root rather than t.TempDir.
func UnixAddress(t testing.TB, name string) string {
	dir, err := os.MkdirTemp("", "kw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return fmt.Sprintf("unix://%s", filepath.Join(dir, name+".sock"))
}
