// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package kms selects a cloud KMS to sign App assertions with, so the App's
// private key never leaves the key service.
package kms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kmsGCP "cloud.google.com/go/kms/apiv1"
	"github.com/aws/aws-sdk-go-v2/config"
	kmsAWS "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/octo-sts/ghapp/pkg/kms/aws"
	"github.com/octo-sts/ghapp/pkg/kms/gcp"
)

const (
	AWS = "aws"
	GCP = "gcp"
)

var ErrUnsupportedProvider = errors.New("unsupported kms provider")

type kmsProvider struct {
	ctx       context.Context
	provider  string
	kmsKey    string
	gcpClient *kmsGCP.KeyManagementClient
	awsClient *kmsAWS.Client
}

type KMS interface {
	NewSigner() (ghinstallation.Signer, error)
}

// NewKMS provides a kmsProvider abstraction to allow for handling multiple providers and simplify passing around data
func NewKMS(ctx context.Context, provider, kmsKey string) (KMS, error) {
	kmsClient := &kmsProvider{
		ctx:      ctx,
		provider: strings.ToLower(provider),
		kmsKey:   kmsKey,
	}
	switch kmsClient.provider {
	case GCP:
		gcpClient, err := kmsGCP.NewKeyManagementClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating gcp kms client: %w", err)
		}
		kmsClient.gcpClient = gcpClient
		return kmsClient, nil
	case AWS:
		awsConfig, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		kmsClient.awsClient = kmsAWS.NewFromConfig(awsConfig)
		return kmsClient, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

func (k *kmsProvider) NewSigner() (ghinstallation.Signer, error) {
	switch k.provider {
	case GCP:
		return gcp.New(k.ctx, k.gcpClient, k.kmsKey)
	case AWS:
		if k.awsClient == nil {
			return nil, errors.New("aws kms client is not configured")
		}
		return aws.New(k.ctx, k.awsClient, k.kmsKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, k.provider)
	}
}
