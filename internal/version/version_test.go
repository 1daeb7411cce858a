package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	v, r, d := Version, Revision, BuildDate
	t.Cleanup(func() { Version, Revision, BuildDate = v, r, d })
}

func TestDetailed(t *testing.T) {
	assert.NotEmpty(t, AppName)

	detailed := Detailed()
	assert.True(t, strings.HasPrefix(detailed, Version+" ("))
	assert.Contains(t, detailed, Revision)
	assert.Contains(t, detailed, "/") // GOOS/GOARCH

	assert.Equal(t, AppName+" "+detailed, DetailedWithApp())
}

func TestFillFromBuild_ReplacesPlaceholders(t *testing.T) {
	restoreGlobals(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	fillFromBuild("v9.9.9", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "9.9.9", Version)
	assert.Equal(t, "abcdef1234567890-dirty", Revision)
	assert.Equal(t, "2025-12-12T01:00:00Z", BuildDate)
}

func TestFillFromBuild_KeepsLdflags(t *testing.T) {
	restoreGlobals(t)
	Version, Revision, BuildDate = "1.2.3", "deadbeef", "from-ldflags"

	fillFromBuild("v9.9.9", map[string]string{
		"vcs.revision": "abcdef",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "deadbeef", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}

func TestFillFromBuild_DevelModule(t *testing.T) {
	restoreGlobals(t)
	Version, Revision = devVersion, "HEAD"

	fillFromBuild("(devel)", nil)

	assert.Equal(t, devVersion, Version)
	assert.Equal(t, "HEAD", Revision)
}

func TestCurrent_MatchesGlobals(t *testing.T) {
	info := Current()
	assert.Equal(t, AppName, info.App)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Revision, info.Revision)
	assert.Contains(t, info.Platform, "/")
	assert.Contains(t, info.GoVersion, "go")
	assert.Equal(t, info.String(), Detailed())
}
