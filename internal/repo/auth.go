package repo

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"strings"
	"time"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// Certificate is a parsed pkg-repository signing certificate.
type Certificate struct {
	Raw         *x509.Certificate
	Fingerprint string // hex SHA-256 of the DER encoding
	CommonName  string
}

// ParseCertificate parses a PEM-encoded certificate, as found in a
// repositories.manifest base entry.
func ParseCertificate(pemText string) (*Certificate, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, diag.New(diag.KindIntegrity, "repo: certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, diag.Wrap(diag.KindIntegrity, err, "repo: parse certificate")
	}
	sum := sha256.Sum256(cert.Raw)
	return &Certificate{
		Raw:         cert,
		Fingerprint: hex.EncodeToString(sum[:]),
		CommonName:  cert.Subject.CommonName,
	}, nil
}

// ScopeMatches reports whether the certificate's Common Name is a
// prefix-matching repository scope for canonicalName, per spec.md §4.3
// step 2.
func (c *Certificate) ScopeMatches(canonicalName string) bool {
	return strings.HasPrefix(canonicalName, c.CommonName)
}

// ExpiryWarning reports whether c expires within two months of now,
// per spec.md §4.3's "Warn if expiry < 2 months away".
func (c *Certificate) ExpiryWarning(now time.Time) bool {
	return c.Raw.NotAfter.Before(now.AddDate(0, 2, 0))
}

// Expired reports whether c is expired as of now. An expired certificate
// still verifies an existing signature as long as it was not expired at
// signing time is out of scope here (no stored signing time is
// available); per spec.md §4.3 it only fails future *signing*, so
// verification of an already-published signature proceeds regardless.
func (c *Certificate) Expired(now time.Time) bool {
	return now.After(c.Raw.NotAfter) || now.Before(c.Raw.NotBefore)
}

// TrustDecision is a persisted (or session-only) answer to "do we trust
// this fingerprint".
type TrustDecision struct {
	Fingerprint string
	Trusted     bool
}

// TrustStore abstracts the configuration-backed trust table plus
// declared dependent-trust fingerprints, per spec.md §4.3 step 3.
type TrustStore interface {
	Lookup(fingerprint string) (TrustDecision, bool)
	Persist(d TrustDecision) error
}

// DependentTrust is the set of fingerprints a dependent package declared
// as trusted without requiring a prompt.
type DependentTrust map[string]bool

// Prompter asks the user to accept or reject an unknown certificate.
type Prompter interface {
	ConfirmCertificate(cert *Certificate) (bool, error)
}

// Authenticate implements spec.md §4.3's four-step pkg-repository
// authentication pipeline.
func Authenticate(cert *Certificate, canonicalName string, trust TrustStore, dependentTrust DependentTrust, prompt Prompter) error {
	if !cert.ScopeMatches(canonicalName) {
		return diag.New(diag.KindIntegrity,
			"repo: certificate CN %q does not match repository scope %q", cert.CommonName, canonicalName)
	}

	if d, ok := trust.Lookup(cert.Fingerprint); ok {
		if !d.Trusted {
			return diag.New(diag.KindIntegrity, "repo: certificate %s for %s is explicitly distrusted", cert.Fingerprint, canonicalName)
		}
		return nil
	}

	if dependentTrust[cert.Fingerprint] {
		return nil
	}

	ok, err := prompt.ConfirmCertificate(cert)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "repo: prompt for certificate %s", cert.Fingerprint)
	}
	if !ok {
		return diag.New(diag.KindIntegrity, "repo: certificate %s for %s was not accepted", cert.Fingerprint, canonicalName)
	}
	return trust.Persist(TrustDecision{Fingerprint: cert.Fingerprint, Trusted: true})
}

// VerifySignature implements spec.md §4.3 step 4: it recovers the
// original SHA-256 digest from the RSA-encrypted signature using the
// certificate's public key, re-hashes packagesManifest, and compares.
func VerifySignature(cert *Certificate, signatureB64 string, packagesManifest []byte) error {
	pub, ok := cert.Raw.PublicKey.(*rsa.PublicKey)
	if !ok {
		return diag.New(diag.KindIntegrity, "repo: certificate does not carry an RSA public key")
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return diag.Wrap(diag.KindIntegrity, err, "repo: decode signature")
	}

	sum := sha256.Sum256(packagesManifest)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], sig); err != nil {
		return diag.Wrap(diag.KindIntegrity, err, "repo: signature does not match packages.manifest digest")
	}
	return nil
}

// SignManifest is used only by test fixtures to produce a valid
// signature.manifest entry for a given private key.
func SignManifest(priv *rsa.PrivateKey, packagesManifest []byte) (string, error) {
	sum := sha256.Sum256(packagesManifest)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, sum[:])
	if err != nil {
		return "", diag.Wrap(diag.KindIntegrity, err, "repo: sign manifest")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
