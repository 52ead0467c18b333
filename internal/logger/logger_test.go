package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/ganttsync/internal/logger"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Msg("Test")
	require.Contains(t, buff.String(), "Test")
}

func TestLevelFilters(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Level("WARN").Make()
	require.NoError(t, err)

	templogger.Logger.Info().Msg("quiet")
	require.Zero(t, buff.Len())
	templogger.Logger.Warn().Msg("loud")
	require.Contains(t, buff.String(), "loud")
}

func TestInvalidLevel(t *testing.T) {
	_, err := logger.New().Level("chatty").Make()
	require.Error(t, err)
}

func TestFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ganttsync.log")
	templogger, err := logger.New().FromPath(path).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger.LogFile)

	templogger.Logger.Info().Str("component", "test").Msg("written")
	require.NoError(t, templogger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "written")
}
