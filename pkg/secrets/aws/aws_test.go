// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsSM "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
)

type fakeSecretsManager struct {
	out *awsSM.GetSecretValueOutput
}

func (f fakeSecretsManager) GetSecretValue(_ context.Context, in *awsSM.GetSecretValueInput, _ ...func(*awsSM.Options)) (*awsSM.GetSecretValueOutput, error) {
	if aws.ToString(in.SecretId) != "github-app-key" {
		return nil, assert.AnError
	}
	return f.out, nil
}

func TestGetSecret(t *testing.T) {
	tests := []struct {
		name string
		out  *awsSM.GetSecretValueOutput
		want string
	}{{
		name: "string secret",
		out:  &awsSM.GetSecretValueOutput{SecretString: aws.String("pem")},
		want: "pem",
	}, {
		name: "binary secret",
		out:  &awsSM.GetSecretValueOutput{SecretBinary: []byte{0x30, 0x82}},
		want: "\x30\x82",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetSecret(context.Background(), fakeSecretsManager{out: tt.out}, "github-app-key")
			assert.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestGetSecretErrors(t *testing.T) {
	_, err := GetSecret(context.Background(), fakeSecretsManager{}, "other")
	assert.ErrorContains(t, err, "error fetching secret other")

	_, err = GetSecret(context.Background(), nil, "github-app-key")
	assert.Error(t, err)
}
