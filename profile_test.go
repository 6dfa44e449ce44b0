package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kitsu2sonarr/internal/config"
	"kitsu2sonarr/internal/sonarr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	profiles []sonarr.QualityProfile
	calls    int
	setID    int
}

func (s *stubLister) QualityProfiles(ctx context.Context) ([]sonarr.QualityProfile, error) {
	s.calls++
	return s.profiles, nil
}

func (s *stubLister) SetProfileID(id int) { s.setID = id }

var twoProfiles = []sonarr.QualityProfile{{ID: 1, Name: "Any"}, {ID: 3, Name: "HD-1080p"}}

func loadTestConfig(t *testing.T) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kitsu:
  client_id: cid
  client_secret: secret
  user_id: "1"
sonarr:
  baseurl: http://localhost:8989
  apikey: abc
`), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestEnsureProfileUsesConfiguredID(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Sonarr.ProfileID = 7
	lister := &stubLister{profiles: twoProfiles}

	require.NoError(t, ensureProfile(context.Background(), &cfg, lister, strings.NewReader(""), &bytes.Buffer{}, true))
	assert.Equal(t, 7, lister.setID)
	assert.Zero(t, lister.calls, "profiles are not listed when one is configured")
}

func TestEnsureProfilePromptsAndPersists(t *testing.T) {
	cfg := loadTestConfig(t)
	lister := &stubLister{profiles: twoProfiles}
	var out bytes.Buffer

	err := ensureProfile(context.Background(), &cfg, lister, strings.NewReader("9\n3\n"), &out, true)
	require.NoError(t, err)
	assert.Equal(t, 3, lister.setID)
	assert.Contains(t, out.String(), "HD-1080p")
	assert.Contains(t, out.String(), `"9" is not one of the listed ids`)

	reloaded, err := config.LoadConfig(cfg.File)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Sonarr.ProfileID)
}

func TestChooseProfileSingleIsAutomatic(t *testing.T) {
	id, err := chooseProfile([]sonarr.QualityProfile{{ID: 4, Name: "Anime"}}, strings.NewReader(""), &bytes.Buffer{}, false)
	require.NoError(t, err)
	assert.Equal(t, 4, id)
}

func TestChooseProfileNonInteractive(t *testing.T) {
	_, err := chooseProfile(twoProfiles, strings.NewReader("3\n"), &bytes.Buffer{}, false)
	require.ErrorIs(t, err, config.ErrConfigIncomplete)
	assert.Contains(t, err.Error(), "3=HD-1080p")
}

func TestChooseProfileGivesUp(t *testing.T) {
	_, err := chooseProfile(twoProfiles, strings.NewReader("x\ny\nz\n3\n"), &bytes.Buffer{}, true)
	require.ErrorIs(t, err, config.ErrConfigIncomplete)
}

func TestChooseProfileNoProfiles(t *testing.T) {
	_, err := chooseProfile(nil, strings.NewReader(""), &bytes.Buffer{}, true)
	require.Error(t, err)
}
