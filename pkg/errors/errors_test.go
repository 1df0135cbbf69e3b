package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorFormatting(t *testing.T) {
	t.Parallel()

	inner := errors.New("unexpected symbol")
	err := NewParseError("plugins/broken.lua", 12, inner)
	require.Equal(t, "parse error: plugins/broken.lua:12: unexpected symbol", err.Error())
	require.ErrorIs(t, err, inner)

	noLine := NewParseError("plugins/broken.lua", 0, inner)
	require.Equal(t, "parse error: plugins/broken.lua: unexpected symbol", noLine.Error())
}

func TestValidationErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewValidationError("plugins_dir", "must not be empty", nil)
	require.Equal(t, "validation error: plugins_dir: must not be empty", err.Error())

	bare := NewValidationError("", "bad config", nil)
	require.Equal(t, "validation error: bad config", bare.Error())
}
