package otcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("accept: %w", ErrRequestFilled.WithMessage("request %s already filled", "r1"))

	assert.True(t, errors.Is(err, ErrRequestFilled))
	assert.False(t, errors.Is(err, ErrRequestCancelled))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrSettlementUnavailable.Wrap(cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrSettlementUnavailable))
	assert.Nil(t, ErrSettlementUnavailable.Err, "sentinel must not be mutated")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestValidation(t *testing.T) {
	err := Validation("assetPair", "must look like %s", "BASE/QUOTE")

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, "assetPair", e.Field)
	assert.Equal(t, "VALIDATION_ERROR: must look like BASE/QUOTE (field assetPair)", e.Error())
}

func TestInternal(t *testing.T) {
	assert.NoError(t, Internal(nil))

	raw := errors.New("pg: deadlock")
	err := Internal(raw)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.True(t, errors.Is(err, raw))

	classified := ErrQuoteExpired.Wrap(raw)
	assert.Same(t, classified, Internal(classified))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
