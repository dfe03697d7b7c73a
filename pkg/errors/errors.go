// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package errors provides structured error types for the Minol MQTT bridge.
//
// The bridge distinguishes four failure domains: authentication against the
// portal, per-category data fetches, MQTT publishing, and configuration.
// Each domain has its own error type so callers can react with errors.As()
// and errors.Is() instead of string matching.
package errors

import (
	"errors"
	"fmt"
)

// AuthError represents a failure during the portal SSO handshake or the
// post-login tenant lookup. An AuthError aborts the whole sync cycle.
type AuthError struct {
	Op  string // Step being performed (e.g. "browser login", "tenant lookup")
	Err error  // Underlying error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("auth %s failed", e.Op)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a new authentication error.
func NewAuthError(op string, err error) *AuthError {
	return &AuthError{Op: op, Err: err}
}

// IsAuthError checks if an error is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// FetchError represents a failure fetching or decoding one consumption
// category. It is caught at the category boundary and never blocks the
// sibling categories.
type FetchError struct {
	Category string // Consumption category (heating, hot_water, cold_water)
	Op       string // Operation being performed (e.g. "post", "decode")
	Err      error  // Underlying error
}

func (e *FetchError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("fetch %s (category=%s): %v", e.Op, e.Category, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fetch %s failed", e.Op)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new fetch error.
func NewFetchError(op string, category string, err error) *FetchError {
	return &FetchError{Op: op, Category: category, Err: err}
}

// IsFetchError checks if an error is a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// PublishError represents a failure publishing to the MQTT bus.
type PublishError struct {
	Topic string // Topic being published to
	Err   error  // Underlying error
}

func (e *PublishError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("publish: %v", e.Err)
	}
	return "publish failed"
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewPublishError creates a new publish error.
func NewPublishError(topic string, err error) *PublishError {
	return &PublishError{Topic: topic, Err: err}
}

// IsPublishError checks if an error is a PublishError.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// StorageError represents a failure writing consumption history to the
// optional time-series sink.
type StorageError struct {
	Op  string // Operation being performed (e.g. "write", "health")
	Err error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("history %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("history %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Sentinel errors for common conditions
var (
	// ErrNotAuthenticated indicates a portal call was attempted without a session
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoTenant indicates the tenant lookup returned no usable account
	ErrNoTenant = errors.New("no tenant found for account")

	// ErrSnapshotUnavailable indicates no consumption snapshot could be produced
	ErrSnapshotUnavailable = errors.New("consumption snapshot unavailable")

	// ErrNoBaseline indicates a timeline carries no positive reference baseline
	ErrNoBaseline = errors.New("no reference baseline in timeline")

	// ErrBrokerUnavailable indicates no MQTT broker could be reached or discovered
	ErrBrokerUnavailable = errors.New("mqtt broker unavailable")

	// ErrLoginTimeout indicates a login page wait budget was exceeded
	ErrLoginTimeout = errors.New("login step timed out")
)
