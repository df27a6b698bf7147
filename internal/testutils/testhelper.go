package testutils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTestTimeout bounds every intent and wait issued from test helpers.
const DefaultTestTimeout = 5 * time.Second

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper. The logger is silent unless
// ACCSTREAM_TEST_LOG names a level (e.g. ACCSTREAM_TEST_LOG=debug).
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("ACCSTREAM_TEST_LOG")); err == nil {
		logger.SetLevel(lvl)
	}
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Context returns a context bounded by DefaultTestTimeout and cancelled at test cleanup.
func (h *TestHelper) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	h.T.Cleanup(cancel)
	return ctx
}
