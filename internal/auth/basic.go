// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package auth protects the admin HTTP routes with HTTP Basic
// authentication against a single bcrypt-hashed credential.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed check; callers should not
// learn which part was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// DefaultCost is the bcrypt cost used when hashing a plain password.
const DefaultCost = 12

// MinPasswordLength applies to plain passwords given at startup.
const MinPasswordLength = 8

// BasicAuthenticator checks HTTP Basic credentials.
type BasicAuthenticator struct {
	username     string
	passwordHash []byte
}

// NewBasicAuthenticator builds an authenticator from either a bcrypt hash or
// a plain password. The hash wins when both are set. A plain password is
// hashed once here, not per request.
func NewBasicAuthenticator(username, password, passwordHash string) (*BasicAuthenticator, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
		}
		return &BasicAuthenticator{username: username, passwordHash: []byte(passwordHash)}, nil
	}

	if password == "" {
		return nil, fmt.Errorf("password or password hash is required")
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &BasicAuthenticator{username: username, passwordHash: hash}, nil
}

// Authenticate validates an Authorization header value and returns the
// username on success.
func (a *BasicAuthenticator) Authenticate(authHeader string) (string, error) {
	encoded, ok := strings.CutPrefix(authHeader, "Basic ")
	if !ok {
		return "", fmt.Errorf("invalid authorization header format: %w", ErrInvalidCredentials)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode credentials: %w", ErrInvalidCredentials)
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", fmt.Errorf("invalid credentials format: %w", ErrInvalidCredentials)
	}

	if !a.check(username, password) {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// check always runs both comparisons so timing does not reveal whether the
// username matched.
func (a *BasicAuthenticator) check(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}

// Challenge is the WWW-Authenticate value sent with 401 responses.
func (a *BasicAuthenticator) Challenge() string {
	return `Basic realm="Shearguard admin", charset="UTF-8"`
}

// HashPassword returns a bcrypt hash suitable for server.admin_password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
