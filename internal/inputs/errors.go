package inputs

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ValidationError reports every problem found in a set of inputs. It is
// returned before any network I/O takes place.
type ValidationError struct {
	Problems *multierror.Error
}

func (e *ValidationError) Error() string {
	return e.Problems.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Problems
}

// Validator collects input problems.
type Validator struct {
	problems *multierror.Error
}

// Addf records a problem.
func (v *Validator) Addf(format string, args ...interface{}) {
	v.problems = multierror.Append(v.problems, fmt.Errorf(format, args...))
}

// Add records err when it is not nil.
func (v *Validator) Add(err error) {
	if err == nil {
		return
	}
	v.problems = multierror.Append(v.problems, err)
}

// Err returns a *ValidationError holding the collected problems, or nil.
func (v *Validator) Err() error {
	if v.problems == nil || len(v.problems.Errors) == 0 {
		return nil
	}
	v.problems.ErrorFormat = newlineFormat
	return &ValidationError{Problems: v.problems}
}

func newlineFormat(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}
