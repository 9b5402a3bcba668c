package pagination_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/portfolio_accountant/internal/utils/pagination"
)

func TestTokenRoundTrip(t *testing.T) {
	date := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	token := pagination.EncodeToken(date, "txn-123")

	gotDate, gotID, err := pagination.DecodeToken(token)
	require.NoError(t, err)
	assert.True(t, gotDate.Equal(date))
	assert.Equal(t, "txn-123", gotID)
}

func TestTokenRoundTripWithPipeInID(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	token := pagination.EncodeToken(date, "id|with|pipes")

	_, gotID, err := pagination.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "id|with|pipes", gotID)
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	_, _, err := pagination.DecodeToken("not base64 at all!!!")
	assert.Error(t, err)

	// Valid base64 but no separator.
	_, _, err = pagination.DecodeToken("aGVsbG8=")
	assert.Error(t, err)

	// Separator present but the date part does not parse.
	_, _, err = pagination.DecodeToken("bm90LWEtZGF0ZXxpZA==")
	assert.Error(t, err)
}
