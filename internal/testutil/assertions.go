package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertConsoleLine checks that stepName wrote line to its console. Console
// lines of Run are prefixed with the step name.
func AssertConsoleLine(t *testing.T, result *HarnessResult, stepName, line string) {
	t.Helper()

	expected := fmt.Sprintf("[%s] %s", stepName, line)
	require.True(t,
		strings.Contains(result.Output, expected),
		"expected console line %q was not found in output:\n%s", expected, result.Output,
	)
}
