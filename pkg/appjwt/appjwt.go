// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package appjwt mints the short-lived RS256 assertions a GitHub App uses to
// authenticate as itself, and caches the current one.
package appjwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v4"
)

// Lifetime is how long an assertion stays valid after it is issued. GitHub
// rejects assertions that live longer than ten minutes.
const Lifetime = 10 * time.Minute

// KeyError reports private key material that cannot be used for RS256.
type KeyError struct {
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid private key: %v", e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// SigningError reports a failure to sign an assertion with a valid key.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing assertion: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// ParsePrivateKey accepts a PEM encoded (PKCS#1 or PKCS#8) or raw DER RSA
// private key.
func ParsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	if block, _ := pem.Decode(raw); block != nil {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
		if err != nil {
			return nil, &KeyError{Err: err}
		}
		return key, nil
	}

	if key, err := x509.ParsePKCS1PrivateKey(raw); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, &KeyError{Err: errors.New("neither PEM nor DER encoded RSA key")}
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, &KeyError{Err: fmt.Errorf("unsupported key type %T", parsed)}
	}
	return key, nil
}

// Generator signs assertions for a single App.
type Generator struct {
	signer ghinstallation.Signer
	issuer string
}

// NewGenerator returns a Generator that signs with signer on behalf of issuer,
// the App ID. Any ghinstallation.Signer works, including the KMS signers in
// this module.
func NewGenerator(signer ghinstallation.Signer, issuer string) *Generator {
	return &Generator{
		signer: signer,
		issuer: issuer,
	}
}

// NewRSAGenerator parses privateKey and returns a Generator that signs with it.
func NewRSAGenerator(privateKey []byte, issuer string) (*Generator, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return NewGenerator(ghinstallation.NewRSASigner(jwt.SigningMethodRS256, key), issuer), nil
}

// Issuer returns the App ID placed in the iss claim.
func (g *Generator) Issuer() string {
	return g.issuer
}

// Generate returns an assertion issued at now along with its expiry, which
// is always now plus Lifetime. JWT dates have whole-second precision, so now
// is truncated to the second and the returned expiry equals the signed exp.
func (g *Generator) Generate(now time.Time) (string, time.Time, error) {
	now = now.Truncate(time.Second)
	expiresAt := now.Add(Lifetime)
	claims := &jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    g.issuer,
	}
	token, err := g.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, &SigningError{Err: err}
	}
	return token, expiresAt, nil
}

// Generate signs a single assertion for issuer with privateKey.
func Generate(privateKey []byte, issuer string, now time.Time) (string, time.Time, error) {
	g, err := NewRSAGenerator(privateKey, issuer)
	if err != nil {
		return "", time.Time{}, err
	}
	return g.Generate(now)
}
