package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	t.Parallel()

	require.Nil(t, ToDomainError(nil))

	conflict := NewConflict("ticket changed", nil)
	wrapped := fmt.Errorf("update: %w", conflict)
	de := ToDomainError(wrapped)
	require.Equal(t, CodeConflict, de.Code)
	require.Equal(t, http.StatusConflict, de.HTTPStatus)

	de = ToDomainError(fmt.Errorf("scan: %w", pgx.ErrNoRows))
	require.Equal(t, CodeNotFound, de.Code)

	cause := errors.New("boom")
	de = ToDomainError(cause)
	require.Equal(t, CodeInternal, de.Code)
	require.ErrorIs(t, de, cause)
}

func TestTransitionErrorsAreClientErrors(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		NewUnknownTrigger("explode"),
		NewTransitionRejected("not allowed", nil),
		NewTransitionFailed(errors.New("guard panicked"), nil),
	} {
		require.Equal(t, http.StatusBadRequest, ToDomainError(err).HTTPStatus)
	}
	require.Equal(t, http.StatusInternalServerError,
		ToDomainError(NewInconsistentState("receipt points at missing ticket", nil)).HTTPStatus)
}
