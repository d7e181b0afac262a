// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the pause between requests. Nominatim's usage policy
// allows an absolute maximum of one request per second.
const DefaultInterval = time.Second

// Limiter paces calls to the geocoding provider. Wait blocks until the next
// request may be sent or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewIntervalLimiter returns a limiter letting one request through every
// interval. The first request is not delayed. A non-positive interval
// disables pacing.
func NewIntervalLimiter(interval time.Duration) Limiter {
	if interval <= 0 {
		return Unlimited{}
	}

	return rate.NewLimiter(rate.Every(interval), 1)
}

// Unlimited never waits.
type Unlimited struct{}

// Wait implements Limiter.
func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
