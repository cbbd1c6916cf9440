// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package aws signs App assertions with an RSA key held in AWS KMS.
package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v4"
)

// SignAPI is the part of *kms.Client used for signing.
type SignAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

var _ SignAPI = (*kms.Client)(nil)

type signingMethodAWS struct {
	ctx    context.Context
	client SignAPI
}

func (s *signingMethodAWS) Verify(signingString, signature string, key interface{}) error {
	return errors.New("not implemented")
}

func (s *signingMethodAWS) Sign(signingString string, ikey interface{}) (string, error) {
	key, ok := ikey.(string)
	if !ok {
		return "", fmt.Errorf("invalid key reference type: %T", ikey)
	}
	resp, err := s.client.Sign(s.ctx, &kms.SignInput{
		KeyId:            aws.String(key),
		Message:          []byte(signingString),
		MessageType:      types.MessageTypeRaw,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return "", fmt.Errorf("signing with %s: %w", key, err)
	}
	return base64.RawURLEncoding.EncodeToString(resp.Signature), nil
}

func (s *signingMethodAWS) Alg() string {
	return "RS256"
}

type signer struct {
	ctx    context.Context
	client SignAPI
	key    string
}

// New returns a signer for key, a key id, alias or ARN of an RSA_2048 (or
// larger) SIGN_VERIFY key.
func New(ctx context.Context, client SignAPI, key string) (ghinstallation.Signer, error) {
	if client == nil {
		return nil, errors.New("aws kms: nil client")
	}
	if key == "" {
		return nil, errors.New("aws kms: empty key id")
	}
	return &signer{
		ctx:    ctx,
		client: client,
		key:    key,
	}, nil
}

func (s *signer) Sign(claims jwt.Claims) (string, error) {
	method := &signingMethodAWS{
		ctx:    s.ctx,
		client: s.client,
	}
	return jwt.NewWithClaims(method, claims).SignedString(s.key)
}
