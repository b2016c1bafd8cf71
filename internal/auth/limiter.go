// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package auth

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// MutationLimiter is a single token bucket shared by every admin route that
// changes the model: retrain, rollback and reset. It is global rather than
// per client because each call rewrites the same artifact.
type MutationLimiter struct {
	limiter *rate.Limiter
}

// NewMutationLimiter allows perHour calls per hour with a burst of perHour.
func NewMutationLimiter(perHour int) *MutationLimiter {
	if perHour < 1 {
		perHour = 1
	}
	return &MutationLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour),
	}
}

// Allow consumes a token if one is available.
func (m *MutationLimiter) Allow() bool {
	return m.limiter.Allow()
}

// RetryAfter is how long until the next token.
func (m *MutationLimiter) RetryAfter() time.Duration {
	r := m.limiter.Reserve()
	defer r.Cancel()
	return r.Delay()
}

type adminKey struct{}

// ContextWithAdmin records the authenticated admin username.
func ContextWithAdmin(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, adminKey{}, username)
}

// AdminFromContext returns the authenticated admin, or "".
func AdminFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(adminKey{}).(string); ok {
		return u
	}
	return ""
}
