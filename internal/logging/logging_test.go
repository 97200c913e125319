package logging_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/config"
	"marketfeed/internal/logging"
)

func TestNew(t *testing.T) {
	t.Parallel()

	log := logging.New(config.Log{Level: "DEBUG", Format: "json"})
	require.Equal(t, logrus.DebugLevel, log.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = logging.New(config.Log{Level: "chatty"})
	require.Equal(t, logrus.InfoLevel, log.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}
