/*
Copyright 2024 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"

	"github.com/chainguard-dev/terraform-infra-common/pkg/prober"

	ghprober "github.com/octo-sts/ghapp/pkg/prober"
)

func main() {
	ctx := context.Background()
	prober.Go(ctx, prober.Func(ghprober.Func))
}
