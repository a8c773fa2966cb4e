package pipelineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(NewTransientInfra("dial", errors.New("connection refused"))))
	assert.True(t, Retryable(&QuotaExceeded{Service: "vision-model", Limit: "per_minute"}))
	assert.False(t, Retryable(NewBusinessLogicError("no resolvable identity for listing")))
	assert.False(t, Retryable(&AIParseError{Stage: "scoring", Err: errors.New("bad json")}))
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	wrapped := NewTransientInfra("database.Ping", base)

	assert.True(t, IsTransient(wrapped))
	assert.True(t, errors.Is(wrapped, base))
}

func TestIntegrityConflictClassification(t *testing.T) {
	err := &IntegrityConflict{Entity: "product", Key: "ean_8901058851884", Err: errors.New("duplicate key")}
	assert.True(t, IsIntegrityConflict(err))
	assert.False(t, Retryable(err))
}

func TestFatalErrorMessage(t *testing.T) {
	err := NewFatal("missing AI_API_KEY", nil)
	assert.Equal(t, "missing AI_API_KEY", err.Error())
	assert.True(t, IsFatal(err))
}
