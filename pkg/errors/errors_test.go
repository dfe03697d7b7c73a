// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAuthError(t *testing.T) {
	baseErr := fmt.Errorf("login page timeout")
	err := NewAuthError("browser login", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "auth") || !strings.Contains(errMsg, "browser login") {
		t.Errorf("Error() = %q, want message containing 'auth' and 'browser login'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsAuthError(err) {
		t.Error("IsAuthError() should return true for AuthError")
	}

	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Error("errors.As() should extract AuthError")
	}
	if ae.Op != "browser login" {
		t.Errorf("AuthError.Op = %q, want %q", ae.Op, "browser login")
	}
}

func TestFetchError(t *testing.T) {
	baseErr := fmt.Errorf("status 500")
	err := NewFetchError("post", "heating", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "fetch") || !strings.Contains(errMsg, "heating") {
		t.Errorf("Error() = %q, want message containing 'fetch' and 'heating'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsFetchError(err) {
		t.Error("IsFetchError() should return true for FetchError")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Error("errors.As() should extract FetchError")
	}
	if fe.Category != "heating" {
		t.Errorf("FetchError.Category = %q, want %q", fe.Category, "heating")
	}
}

func TestPublishError(t *testing.T) {
	baseErr := fmt.Errorf("connection lost")
	err := NewPublishError("minol/heating_total/state", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "publish") || !strings.Contains(errMsg, "minol/heating_total/state") {
		t.Errorf("Error() = %q, want message containing 'publish' and the topic", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsPublishError(err) {
		t.Error("IsPublishError() should return true for PublishError")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("must be between 1 and 65535")
	err := NewConfigError("mqtt.port", "70000", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "mqtt.port") || !strings.Contains(errMsg, "70000") {
		t.Errorf("Error() = %q, want message containing field and value", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsConfigError(err) {
		t.Error("IsConfigError() should return true for ConfigError")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")
	err := NewStorageError("write", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "history") || !strings.Contains(errMsg, "write") {
		t.Errorf("Error() = %q, want message containing 'history' and 'write'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsStorageError(err) {
		t.Error("IsStorageError() should return true for StorageError")
	}
}

func TestErrorTypeDiscrimination(t *testing.T) {
	authErr := NewAuthError("browser login", fmt.Errorf("timeout"))
	fetchErr := NewFetchError("post", "heating", fmt.Errorf("status 500"))

	if IsFetchError(authErr) {
		t.Error("IsFetchError() should be false for AuthError")
	}
	if IsAuthError(fetchErr) {
		t.Error("IsAuthError() should be false for FetchError")
	}
	if IsAuthError(nil) {
		t.Error("IsAuthError(nil) should be false")
	}
}

func TestSentinelErrors(t *testing.T) {
	wrapped := NewAuthError("tenant lookup", ErrNoTenant)
	if !errors.Is(wrapped, ErrNoTenant) {
		t.Error("errors.Is() should find ErrNoTenant through AuthError")
	}

	fetchWrapped := NewFetchError("post", "heating", ErrNotAuthenticated)
	if !errors.Is(fetchWrapped, ErrNotAuthenticated) {
		t.Error("errors.Is() should find ErrNotAuthenticated through FetchError")
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := &AuthError{Op: "browser login"}
	if err.Error() == "" {
		t.Error("Error() must not be empty without a cause")
	}
	if err.Unwrap() != nil {
		t.Error("Unwrap() should be nil without a cause")
	}
}
