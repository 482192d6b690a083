package calibrate

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testLoggerFor(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}
