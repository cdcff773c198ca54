package pipeline

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// This catches any leaked goroutines left behind by jobs, including interrupted ones.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
