// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package secrets fetches the App's private key and webhook secrets from a
// cloud secret manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcpSM "cloud.google.com/go/secretmanager/apiv1"
	"github.com/aws/aws-sdk-go-v2/config"
	awsSM "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/octo-sts/ghapp/pkg/secrets/aws"
	"github.com/octo-sts/ghapp/pkg/secrets/gcp"
)

type SecretProvider interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
}

const (
	AWS = "aws"
	GCP = "gcp"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported secret provider")
	ErrEmptySecret         = errors.New("secret is empty")
)

type secretProvider struct {
	provider         string
	gcpSecretManager *gcpSM.Client
	awsSecretManager aws.API
}

func (s *secretProvider) GetSecret(ctx context.Context, name string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch s.provider {
	case AWS:
		data, err = aws.GetSecret(ctx, s.awsSecretManager, name)
	case GCP:
		data, err = gcp.GetSecret(ctx, s.gcpSecretManager, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, s.provider)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptySecret)
	}
	return data, nil
}

func NewSecretProvider(ctx context.Context, provider string) (SecretProvider, error) {
	sp := &secretProvider{
		provider: strings.ToLower(provider),
	}

	switch sp.provider {
	case AWS:
		awsConfig, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		sp.awsSecretManager = awsSM.NewFromConfig(awsConfig)
		return sp, nil
	case GCP:
		client, err := gcpSM.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating secret manager client: %w", err)
		}
		sp.gcpSecretManager = client
		return sp, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// GetAll fetches every named secret, failing on the first that cannot be read.
func GetAll(ctx context.Context, sp SecretProvider, names []string) ([][]byte, error) {
	out := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := sp.GetSecret(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
