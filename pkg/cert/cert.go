// Package cert generates self-signed server certificates for the web UI's TLS listener.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Default file names written by Save
const (
	CertFileName = "server.pem"
	KeyFileName  = "server-key.pem"
)

// ErrExists is returned by Save when a file would be overwritten without force
var ErrExists = errors.New("certificate files already exist")

// Options configures a generated certificate
type Options struct {
	Hosts        []string
	Organization string
	ValidFor     time.Duration
	KeyBits      int
}

// DefaultOptions returns options for a localhost certificate valid for one year
func DefaultOptions() Options {
	return Options{
		Hosts:        []string{"localhost", "127.0.0.1"},
		Organization: "candecode",
		ValidFor:     365 * 24 * time.Hour,
		KeyBits:      2048,
	}
}

// Certificate is a generated certificate and its key
type Certificate struct {
	*x509.Certificate
	PrivateKey *rsa.PrivateKey
}

// Generate creates a self-signed server certificate for opts.Hosts.
// Hosts that parse as IP addresses become IP SANs, the rest DNS SANs.
func Generate(opts Options) (*Certificate, error) {
	if len(opts.Hosts) == 0 {
		return nil, fmt.Errorf("at least one host is required")
	}
	if opts.ValidFor <= 0 {
		return nil, fmt.Errorf("validity must be positive")
	}
	if opts.KeyBits == 0 {
		opts.KeyBits = 2048
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   opts.Hosts[0],
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{Certificate: parsed, PrivateKey: key}, nil
}

// Save writes the certificate and key as PEM files into dir and returns their paths
func (c *Certificate) Save(dir string, force bool) (certPath, keyPath string, err error) {
	certPath = filepath.Join(dir, CertFileName)
	keyPath = filepath.Join(dir, KeyFileName)

	if !force {
		for _, p := range []string{certPath, keyPath} {
			if _, err := os.Stat(p); err == nil {
				return "", "", fmt.Errorf("%w: %s", ErrExists, p)
			}
		}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("failed to create certificate directory: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return "", "", err
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(c.PrivateKey), 0o600); err != nil {
		return "", "", err
	}

	return certPath, keyPath, nil
}

// PEM returns the certificate as a PEM-encoded string
func (c *Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: c.Raw,
	}))
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) // #nosec G304 -- path is built from a user-provided directory
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = out.Close() }()

	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Tighten permissions on files that already existed
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}
