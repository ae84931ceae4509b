package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/credentials"
	"github.com/sawpanic/skinmarket/internal/marketclient"
	"github.com/sawpanic/skinmarket/internal/model"
)

func TestNewAssemblesEngineWithDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	e, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, e.Pipelines)
	assert.NotNil(t, e.Scheduler)
	assert.NotNil(t, e.HTTPServer)
}

func TestNewUsesSettingsFileWhenProvided(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, writeFile(path, "diff_min: \"2\"\ndiff_max: \"6\"\n"))

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.SettingsFile = path

	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "2", e.Settings.Get().DiffMin.String())
}

type stubSearcher struct {
	err error
}

func (s *stubSearcher) Search(ctx context.Context, keyword string) ([]model.Item, error) {
	return nil, s.err
}

func TestAuthCheckerClassifiesAuthFailureAsInvalid(t *testing.T) {
	ac := newAuthChecker()
	ac.setClients(&stubSearcher{err: &marketclient.Failure{Class: marketclient.ErrAuthFailed, Err: errors.New("401")}}, &stubSearcher{})

	result := ac.Check(model.PlatformA, credentials.Bag{})
	assert.Equal(t, credentials.StatusInvalid, result.Status)
}

func TestAuthCheckerClassifiesTransportErrorAsTransient(t *testing.T) {
	ac := newAuthChecker()
	ac.setClients(&stubSearcher{err: &marketclient.Failure{Class: marketclient.ErrTransport, Err: errors.New("timeout")}}, &stubSearcher{})

	result := ac.Check(model.PlatformA, credentials.Bag{})
	assert.Equal(t, credentials.StatusTransientFailure, result.Status)
}

func TestAuthCheckerSucceedsWithNoError(t *testing.T) {
	ac := newAuthChecker()
	ac.setClients(&stubSearcher{}, &stubSearcher{})

	result := ac.Check(model.PlatformA, credentials.Bag{})
	assert.Equal(t, credentials.StatusValid, result.Status)
}

func TestAuthCheckerRejectsUnknownPlatform(t *testing.T) {
	ac := newAuthChecker()
	result := ac.Check(model.Platform("C"), credentials.Bag{})
	assert.Equal(t, credentials.StatusInvalid, result.Status)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
