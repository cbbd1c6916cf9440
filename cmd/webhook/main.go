// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	metrics "github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	mce "github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics/cloudevents"
	"github.com/octo-sts/ghapp/pkg/appsetup"
	envConfig "github.com/octo-sts/ghapp/pkg/envconfig"
	"github.com/octo-sts/ghapp/pkg/ghapp"
	"github.com/octo-sts/ghapp/pkg/ghclient"
	"github.com/octo-sts/ghapp/pkg/ghinstall"
	"github.com/octo-sts/ghapp/pkg/secrets"
	"github.com/octo-sts/ghapp/pkg/webhook"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = clog.WithLogger(ctx, clog.New(slog.Default().Handler()))

	baseCfg, err := envConfig.Process()
	if err != nil {
		log.Panicf("failed to process env var: %s", err)
	}
	webhookConfig, err := envConfig.WebhookConfig()
	if err != nil {
		log.Panicf("failed to process env var: %s", err)
	}

	transport := http.DefaultTransport
	if baseCfg.Metrics {
		go metrics.ServeMetrics()

		// Setup tracing.
		defer metrics.SetupTracer(ctx)()

		transport = metrics.WrapTransport(transport)
	}
	opts := []ghapp.Option{
		ghapp.WithClient(appsetup.Client(baseCfg, ghclient.WithTransport(transport))),
	}

	if baseCfg.EventingIngress != "" {
		ceclient, err := mce.NewClientHTTP("octo-sts-ghapp", mce.WithTarget(ctx, baseCfg.EventingIngress)...)
		if err != nil {
			log.Panicf("failed to create cloudevents client: %v", err)
		}
		opts = append(opts, ghapp.WithEventClient(ceclient, ""))
	}

	app, err := appsetup.New(ctx, baseCfg, opts...)
	if err != nil {
		log.Panicf("error creating GitHub App: %v", err)
	}
	installs, err := ghinstall.New(app)
	if err != nil {
		log.Panicf("error creating installation manager: %v", err)
	}

	// Webhook secrets live next to the private key: in the secret manager
	// when the key does, otherwise inline.
	webhookSecrets := [][]byte{}
	if baseCfg.KMSKey != "" || baseCfg.AppSecretName != "" {
		sp, err := secrets.NewSecretProvider(ctx, baseCfg.SecretProvider)
		if err != nil {
			log.Panicf("could not create secret provider: %v", err)
		}
		webhookSecrets, err = secrets.GetAll(ctx, sp, webhookConfig.WebhookSecrets())
		if err != nil {
			log.Panicf("error fetching webhook secrets: %v", err)
		}
	} else {
		for _, s := range webhookConfig.WebhookSecrets() {
			webhookSecrets = append(webhookSecrets, []byte(s))
		}
	}
	if orgs := webhookConfig.OrganizationList(); len(orgs) > 0 {
		clog.InfoContextf(ctx, "marking pull requests for app %s in %s", app.ID(), strings.Join(orgs, ", "))
	}

	var handler http.Handler = &webhook.StatusMarker{
		Installations: installs,
		WebhookSecret: webhookSecrets,
		Organizations: webhookConfig.OrganizationList(),
		Status: ghapp.Status{
			Context:     webhookConfig.StatusContext,
			TargetURL:   webhookConfig.StatusTargetURL,
			Description: webhookConfig.StatusDescription,
		},
	}
	if baseCfg.Metrics {
		handler = metrics.Handler("webhook", handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", webhookConfig.Port),
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           mux,
	}
	log.Panic(srv.ListenAndServe())
}
