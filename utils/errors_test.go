package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureExit replaces Exit for the duration of the test
func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	saved := Exit
	Exit = func(c int) { code = c }
	t.Cleanup(func() { Exit = saved })
	return &code
}

func TestLocate(t *testing.T) {
	assert.Nil(t, Locate("noop", nil))

	base := errors.New("clCreateBuffer failed")
	err := Locate("creating buffer a", base)
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "creating buffer a: clCreateBuffer failed", err.Error())

	var le *LocatedError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "errors_test.go", le.File)
	assert.Positive(t, le.Line)
}

func TestDie(t *testing.T) {
	t.Run("LocatedError", func(t *testing.T) {
		code := captureExit(t)
		err := fmt.Errorf("setup: %w", &LocatedError{
			Op: "building program", File: "runner.go", Line: 42, Err: errors.New("syntax error"),
		})

		var out bytes.Buffer
		Die(&out, err)
		assert.Equal(t, ExitFailure, *code)
		assert.Equal(t,
			"Error at line 42 of file runner.go:\nsetup: building program: syntax error\n",
			out.String())
	})

	t.Run("PlainError", func(t *testing.T) {
		code := captureExit(t)
		var out bytes.Buffer
		Die(&out, errors.New("boom"))
		assert.Equal(t, ExitFailure, *code)
		assert.True(t, strings.HasPrefix(out.String(), "Error at line "), out.String())
		assert.Contains(t, out.String(), "of file errors_test.go:\nboom\n")
	})
}
