package errx_test

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRegistry = errx.NewRegistry("TEST")
	codeExpired  = testRegistry.Register("TOKEN_EXPIRED", errx.TypeUnauthenticated, "token expired")
	codeStore    = testRegistry.Register("STORE_DOWN", errx.TypeUnavailable, "store unavailable")
)

func TestRegistry_NewCarriesPrefixedCodeAndStatus(t *testing.T) {
	err := testRegistry.New(codeExpired)

	assert.Equal(t, "TEST_TOKEN_EXPIRED", err.Code)
	assert.Equal(t, 401, err.HTTPStatus)
	assert.False(t, err.Retryable())

	got, ok := testRegistry.Get("TOKEN_EXPIRED")
	require.True(t, ok)
	assert.Same(t, codeExpired, got)
}

func TestHasCode_SurvivesWrapping(t *testing.T) {
	base := testRegistry.NewWithCause(codeStore, errors.New("dial tcp: refused"))
	wrapped := fmt.Errorf("revocation lookup: %w", base)

	assert.True(t, errx.HasCode(wrapped, codeStore))
	assert.False(t, errx.HasCode(wrapped, codeExpired))
	assert.True(t, errx.IsType(wrapped, errx.TypeUnavailable))
	assert.True(t, errors.Is(wrapped, testRegistry.New(codeStore)))
}

func TestTypeHTTPStatus(t *testing.T) {
	cases := map[errx.Type]int{
		errx.TypeValidation:      400,
		errx.TypeUnauthenticated: 401,
		errx.TypeForbidden:       403,
		errx.TypeAlreadyExists:   409,
		errx.TypeLogic:           422,
		errx.TypeTooManyRequests: 429,
		errx.TypeFederation:      502,
		errx.TypeUnavailable:     503,
		errx.TypeInternal:        500,
	}
	for typ, status := range cases {
		assert.Equal(t, status, typ.HTTPStatus(), typ.String())
	}
}

func TestHandleError_HidesUnclassifiedCause(t *testing.T) {
	rec := httptest.NewRecorder()
	errx.HandleError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}
