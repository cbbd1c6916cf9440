// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package appsetup builds a ghapp.App from environment configuration.
package appsetup

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	envConfig "github.com/octo-sts/ghapp/pkg/envconfig"
	"github.com/octo-sts/ghapp/pkg/ghapp"
	"github.com/octo-sts/ghapp/pkg/ghclient"
	"github.com/octo-sts/ghapp/pkg/kms"
	"github.com/octo-sts/ghapp/pkg/secrets"
)

// Client returns the request facade described by env. extra options are
// applied last.
func Client(env *envConfig.EnvConfig, extra ...ghclient.Option) *ghclient.Client {
	opts := []ghclient.Option{
		ghclient.WithBaseURL(env.APIURL),
		ghclient.WithUserAgent(env.UserAgent),
		ghclient.WithAccept(env.Accept),
		ghclient.WithMaxResponseSize(env.MaxResponseBytes),
	}
	return ghclient.New(append(opts, extra...)...)
}

// New returns the App described by env, loading its private key from whichever
// source is configured. opts are applied after the client derived from env,
// so they may replace it.
func New(ctx context.Context, env *envConfig.EnvConfig, opts ...ghapp.Option) (*ghapp.App, error) {
	opts = append([]ghapp.Option{ghapp.WithClient(Client(env))}, opts...)
	log := clog.FromContext(ctx).With("github/app", env.AppID)

	switch {
	case env.AppSecretCertificateEnvVar != "":
		log.Debug("using private key from the environment")
		return ghapp.New([]byte(env.AppSecretCertificateEnvVar), env.AppID, opts...)

	case env.AppSecretCertificateFile != "":
		log.Debugf("using private key from %s", env.AppSecretCertificateFile)
		return ghapp.FromPrivateKeyFile(env.AppSecretCertificateFile, env.AppID, opts...)

	case env.AppSecretName != "":
		log.Debugf("using private key from %s secret %s", env.SecretProvider, env.AppSecretName)
		sp, err := secrets.NewSecretProvider(ctx, env.SecretProvider)
		if err != nil {
			return nil, fmt.Errorf("error creating secret provider: %w", err)
		}
		return FromSecret(ctx, sp, env.AppSecretName, env.AppID, opts...)

	case env.KMSKey != "":
		log.Debugf("signing with %s kms key %s", env.KMSProvider, env.KMSKey)
		k, err := kms.NewKMS(ctx, env.KMSProvider, env.KMSKey)
		if err != nil {
			return nil, fmt.Errorf("error creating kms client: %w", err)
		}
		return FromKMS(k, env.AppID, opts...)

	default:
		return nil, errors.New("no private key source configured")
	}
}

// FromSecret returns an App whose private key is the secret name.
func FromSecret(ctx context.Context, sp secrets.SecretProvider, name, appID string, opts ...ghapp.Option) (*ghapp.App, error) {
	key, err := sp.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	return ghapp.New(key, appID, opts...)
}

// FromKMS returns an App whose assertions are signed by k.
func FromKMS(k kms.KMS, appID string, opts ...ghapp.Option) (*ghapp.App, error) {
	signer, err := k.NewSigner()
	if err != nil {
		return nil, fmt.Errorf("error creating signer: %w", err)
	}
	return ghapp.NewWithSigner(signer, appID, opts...), nil
}
