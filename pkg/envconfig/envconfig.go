// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package envconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type EnvConfig struct {
	AppID            string `envconfig:"GITHUB_APP_ID" required:"true"`
	APIURL           string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	UserAgent        string `envconfig:"GITHUB_USER_AGENT" default:"octo-sts-ghapp"`
	Accept           string `envconfig:"GITHUB_ACCEPT" default:"application/vnd.github.machine-man-preview+json"`
	MaxResponseBytes int64  `envconfig:"MAX_RESPONSE_BYTES" default:"10485760"`

	AppSecretCertificateFile   string `envconfig:"APP_SECRET_CERTIFICATE_FILE" required:"false"`
	AppSecretCertificateEnvVar string `envconfig:"APP_SECRET_CERTIFICATE_ENV_VAR" required:"false"`
	AppSecretName              string `envconfig:"APP_SECRET_NAME" required:"false"`
	SecretProvider             string `envconfig:"SECRET_PROVIDER" default:"gcp"`
	KMSKey                     string `envconfig:"KMS_KEY" required:"false"`
	KMSProvider                string `envconfig:"KMS_PROVIDER" default:"gcp"`

	EventingIngress string `envconfig:"EVENT_INGRESS_URI" required:"false"`
	Metrics         bool   `envconfig:"METRICS" required:"false" default:"true"`
}

type EnvConfigWebhook struct {
	Port          int    `envconfig:"PORT" required:"true"`
	WebhookSecret string `envconfig:"GITHUB_WEBHOOK_SECRET" required:"true"`
	Organizations string `envconfig:"GITHUB_ORGANIZATIONS" required:"false"`

	StatusContext     string `envconfig:"STATUS_CONTEXT" default:"default"`
	StatusTargetURL   string `envconfig:"STATUS_TARGET_URL" required:"false"`
	StatusDescription string `envconfig:"STATUS_DESCRIPTION" required:"false"`
}

// Process reads the App configuration from the environment. Exactly one source
// for the App's private key must be configured.
func Process() (*EnvConfig, error) {
	cfg := new(EnvConfig)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if cfg.AppID == "" {
		return nil, errors.New("GITHUB_APP_ID must not be empty")
	}

	var sources []string
	for name, v := range map[string]string{
		"KMS_KEY":                        cfg.KMSKey,
		"APP_SECRET_NAME":                cfg.AppSecretName,
		"APP_SECRET_CERTIFICATE_FILE":    cfg.AppSecretCertificateFile,
		"APP_SECRET_CERTIFICATE_ENV_VAR": cfg.AppSecretCertificateEnvVar,
	} {
		if v != "" {
			sources = append(sources, name)
		}
	}
	switch len(sources) {
	case 0:
		return nil, errors.New("no private key source configured: set one of KMS_KEY, APP_SECRET_NAME, APP_SECRET_CERTIFICATE_FILE or APP_SECRET_CERTIFICATE_ENV_VAR")
	case 1:
	default:
		return nil, fmt.Errorf("only one private key source may be configured, got %d", len(sources))
	}
	if cfg.MaxResponseBytes <= 0 {
		return nil, fmt.Errorf("MAX_RESPONSE_BYTES must be positive, got %d", cfg.MaxResponseBytes)
	}
	return cfg, nil
}

func WebhookConfig() (*EnvConfigWebhook, error) {
	cfg := new(EnvConfigWebhook)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WebhookSecrets splits the configured secret list. Several secrets may be
// active at once while one is being rotated.
func (c *EnvConfigWebhook) WebhookSecrets() []string {
	var out []string
	for _, s := range strings.Split(c.WebhookSecret, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// OrganizationList returns the organizations the webhook accepts events from.
// An empty list accepts every organization.
func (c *EnvConfigWebhook) OrganizationList() []string {
	var out []string
	for _, o := range strings.Split(c.Organizations, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.ToLower(o))
		}
	}
	return out
}
