package returncode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code     string
		expected Severity
	}{
		{"000000", SeverityOK},
		{"011000", SeverityWarning},
		{"031001", SeverityWarning},
		{"061001", SeverityError},
		{"090005", SeverityError},
		{"091002", SeverityError},
		{"91002", SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.code))
		})
	}
}

func TestMap(t *testing.T) {
	tests := []struct {
		code   string
		kind   Kind
		symbol string
	}{
		{"061001", KindAuthentication, "EBICS_AUTHENTICATION_FAILED"},
		{"090005", KindNoDataAvailable, "EBICS_NO_DOWNLOAD_DATA_AVAILABLE"},
		{"091002", KindKeyRingState, "EBICS_INVALID_USER_OR_USER_STATE"},
		{"091101", KindProtocol, "EBICS_TX_UNKNOWN_TXID"},
		{"090004", KindBusiness, "EBICS_INVALID_ORDER_DATA_FORMAT"},
		{"099999", KindProtocol, "EBICS_UNKNOWN_RETURN_CODE"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := Map(tt.code, " some text ")
			require.Error(t, err)

			var rc *Error
			require.True(t, errors.As(err, &rc))
			assert.Equal(t, tt.kind, rc.Kind)
			assert.Equal(t, tt.symbol, rc.Symbol)
			assert.Equal(t, "some text", rc.Text)
			assert.True(t, IsKind(err, tt.kind))
		})
	}
}

func TestMap_Deterministic(t *testing.T) {
	for code := range table {
		first := Map(code, "x")
		second := Map(code, "x")
		assert.Equal(t, first, second, code)
	}
}

func TestMap_NonErrors(t *testing.T) {
	assert.NoError(t, Map("000000", ""))
	assert.NoError(t, Map("011000", "[EBICS_DOWNLOAD_POSTPROCESS_DONE]"))
	assert.NoError(t, Map("031001", ""))
}

func TestErrUserAlreadyActive(t *testing.T) {
	err := fmt.Errorf("INI: %w", Map("91002", ""))
	assert.ErrorIs(t, err, ErrUserAlreadyActive)
	assert.NotErrorIs(t, Map("091003", ""), ErrUserAlreadyActive)
	assert.ErrorIs(t, Map("090005", ""), ErrNoDataAvailable)
}

func TestIsTransactionDiscarded(t *testing.T) {
	assert.True(t, IsTransactionDiscarded("091101"))
	assert.True(t, IsTransactionDiscarded("091102"))
	assert.False(t, IsTransactionDiscarded("091103"))
}

func TestErrorString(t *testing.T) {
	err := Map("061001", "[EBICS_AUTHENTICATION_FAILED] Authentication failed")
	assert.Equal(t, "authentication 061001 EBICS_AUTHENTICATION_FAILED: [EBICS_AUTHENTICATION_FAILED] Authentication failed", err.Error())

	wrapped := Wrap(KindTransport, errors.New("connection refused"), "send")
	assert.Equal(t, "transport: send: connection refused", wrapped.Error())
	assert.Equal(t, KindTransport, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
