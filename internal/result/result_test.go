package result

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
)

func TestSuccess(t *testing.T) {
	m := Success("done").With(map[string]string{Stdout: "out"})

	assert.Equal(t, "done", m[ReturnResult])
	assert.Equal(t, CodeSuccess, m[ReturnCode])
	assert.Equal(t, "out", m[Stdout])
	assert.NotContains(t, m, Exception)
	assert.True(t, m.Succeeded())
}

func TestFailure(t *testing.T) {
	root := errors.New("connection refused")
	err := fmt.Errorf("dial: %w", root)

	m := Failure(err)
	assert.Equal(t, "dial: connection refused", m[ReturnResult])
	assert.Equal(t, CodeFailure, m[ReturnCode])
	assert.False(t, m.Succeeded())

	lines := strings.Split(m[Exception], "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "dial: connection refused")
	assert.Contains(t, lines[1], "Caused by: *errors.errorString: connection refused")

	assert.Equal(t, "unknown error", Failure(nil)[ReturnResult])
}

func TestDescribeMultierror(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, errors.New("first"), errors.New("second"))

	out := Describe(merr)
	assert.Contains(t, out, "\tCaused by: *errors.errorString: first")
	assert.Contains(t, out, "\tCaused by: *errors.errorString: second")
	assert.Empty(t, Describe(nil))
}
