// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsSM "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// API is the part of *secretsmanager.Client used to read secrets.
type API interface {
	GetSecretValue(ctx context.Context, params *awsSM.GetSecretValueInput, optFns ...func(*awsSM.Options)) (*awsSM.GetSecretValueOutput, error)
}

var _ API = (*awsSM.Client)(nil)

func GetSecret(ctx context.Context, manager API, name string) ([]byte, error) {
	if manager == nil {
		return nil, errors.New("aws secrets manager client is not configured")
	}
	resp, err := manager.GetSecretValue(ctx, &awsSM.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("error fetching secret %s: %w", name, err)
	}

	// Depending on how the secret was stored, it can be either a string or binary.
	if resp.SecretString != nil {
		return []byte(*resp.SecretString), nil
	}
	return resp.SecretBinary, nil
}
