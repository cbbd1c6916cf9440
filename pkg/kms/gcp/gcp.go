// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gcp signs App assertions with an RSA key held in Google Cloud KMS.
package gcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v4"
)

type signingMethodGCP struct {
	ctx    context.Context
	client *kms.KeyManagementClient
}

func (s *signingMethodGCP) Verify(string, string, interface{}) error {
	return errors.New("not implemented")
}

func (s *signingMethodGCP) Sign(signingString string, ikey interface{}) (string, error) {
	key, ok := ikey.(string)
	if !ok {
		return "", fmt.Errorf("invalid key reference type: %T", ikey)
	}
	resp, err := s.client.AsymmetricSign(s.ctx, &kmspb.AsymmetricSignRequest{
		Name: key,
		Data: []byte(signingString),
	})
	if err != nil {
		return "", fmt.Errorf("signing with %s: %w", key, err)
	}
	if len(resp.GetSignature()) == 0 {
		return "", fmt.Errorf("signing with %s: empty signature", key)
	}
	return base64.RawURLEncoding.EncodeToString(resp.GetSignature()), nil
}

func (s *signingMethodGCP) Alg() string {
	return "RS256"
}

type signer struct {
	ctx    context.Context
	client *kms.KeyManagementClient
	key    string
}

// New returns a signer for the crypto key version named key, e.g.
// projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1. The key
// must be an RSA_SIGN_PKCS1_*_SHA256 key.
func New(ctx context.Context, client *kms.KeyManagementClient, key string) (ghinstallation.Signer, error) {
	if client == nil {
		return nil, errors.New("gcp kms: nil client")
	}
	if key == "" {
		return nil, errors.New("gcp kms: empty key name")
	}
	return &signer{
		ctx:    ctx,
		client: client,
		key:    key,
	}, nil
}

// Sign signs the JWT claims with the KMS key.
func (s *signer) Sign(claims jwt.Claims) (string, error) {
	method := &signingMethodGCP{
		ctx:    s.ctx,
		client: s.client,
	}
	return jwt.NewWithClaims(method, claims).SignedString(s.key)
}
