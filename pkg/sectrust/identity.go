package sectrust

import (
	"bytes"
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	gop12 "software.sslmate.com/src/go-pkcs12"
)

// SigningIdentity is a code signing identity (certificate plus private
// key) loaded for verification purposes: deriving a requirement that
// matches code signed with it. This package never signs anything.
type SigningIdentity struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
	CertChain   []*x509.Certificate
	TeamID      string
}

// LoadSigningIdentity loads a signing identity from PKCS#12 or PEM data.
// PEM input may carry the certificate chain alongside the key; the first
// CERTIFICATE block becomes the leaf.
func LoadSigningIdentity(data []byte, password string) (*SigningIdentity, error) {
	if bytes.HasPrefix(data, []byte("-----BEGIN")) {
		return loadPEMIdentity(data)
	}

	privateKey, cert, caCerts, err := gop12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}

	chain := []*x509.Certificate{cert}
	chain = append(chain, caCerts...)

	return &SigningIdentity{
		Certificate: cert,
		PrivateKey:  privateKey,
		CertChain:   chain,
		TeamID:      extractTeamID(cert),
	}, nil
}

func loadPEMIdentity(pemData []byte) (*SigningIdentity, error) {
	identity := &SigningIdentity{}

	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		var err error
		switch block.Type {
		case "CERTIFICATE":
			var cert *x509.Certificate
			cert, err = x509.ParseCertificate(block.Bytes)
			if err == nil {
				identity.CertChain = append(identity.CertChain, cert)
			}
		case "RSA PRIVATE KEY":
			identity.PrivateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		case "PRIVATE KEY":
			identity.PrivateKey, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			identity.PrivateKey, err = x509.ParseECPrivateKey(block.Bytes)
		default:
			return nil, fmt.Errorf("unsupported PEM type: %s", block.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse PEM block %q: %w", block.Type, err)
		}
	}

	if len(identity.CertChain) == 0 && identity.PrivateKey == nil {
		return nil, fmt.Errorf("no usable PEM blocks found")
	}
	if len(identity.CertChain) > 0 {
		identity.Certificate = identity.CertChain[0]
		identity.TeamID = extractTeamID(identity.Certificate)
	}
	return identity, nil
}

func extractTeamID(cert *x509.Certificate) string {
	// Apple puts the ten character team ID in the Organizational Unit.
	for _, ou := range cert.Subject.OrganizationalUnit {
		if len(ou) == 10 {
			return ou
		}
	}
	return ""
}

// RequirementText returns a requirement expression matching code signed
// with this identity's certificate, suitable for ParseRequirement.
func (id *SigningIdentity) RequirementText() (string, error) {
	if id.Certificate == nil {
		return "", fmt.Errorf("identity has no certificate")
	}
	return RequirementTextForCertificate(id.Certificate), nil
}

// RequirementTextForCertificate returns a requirement expression matching
// code whose leaf certificate is exactly cert, using the certificate's
// SHA-1 fingerprint as the requirement language specifies.
func RequirementTextForCertificate(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return fmt.Sprintf("certificate leaf = H\"%s\"", hex.EncodeToString(sum[:]))
}

// RequirementTextForTeam returns a requirement expression matching code
// signed through Apple's developer program by the given team.
func RequirementTextForTeam(teamID string) string {
	return fmt.Sprintf("anchor apple generic and certificate leaf[subject.OU] = %q", teamID)
}
