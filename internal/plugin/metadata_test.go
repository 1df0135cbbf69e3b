package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenbot/warden/internal/permission"
)

const exampleSource = `# Plugin: Reminders
# Version: 1.2.0
# Author: warden team
# Description: scheduled reminder commands
# Dependencies: storage, timeparse
# Permissions: moderator

function setup(host)
  host.register_command("remind", function(ctx) return "ok" end)
end
`

func TestParseSourceFullHeader(t *testing.T) {
	t.Parallel()

	meta, _, err := ParseSource("plugins/reminders.lua", []byte(exampleSource))
	require.NoError(t, err)
	require.Equal(t, "Reminders", meta.Name)
	require.Equal(t, "1.2.0", meta.Version)
	require.Equal(t, "warden team", meta.Author)
	require.Equal(t, "scheduled reminder commands", meta.Description)
	require.Equal(t, []string{"storage", "timeparse"}, meta.Dependencies)
	require.Equal(t, permission.LevelModerator, meta.Permission)
}

func TestParseSourceDefaults(t *testing.T) {
	t.Parallel()

	src := "function setup(host)\nend\n"
	meta, _, err := ParseSource("plugins/greeter.lua", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "greeter", meta.Name, "name falls back to the file stem")
	require.Empty(t, meta.Version)
	require.Nil(t, meta.Dependencies)
	require.Equal(t, permission.LevelUser, meta.Permission)
}

func TestParseSourceDependencyListCleanup(t *testing.T) {
	t.Parallel()

	src := "# Dependencies: a , b,, a, c\nfunction setup() end\n"
	meta, _, err := ParseSource("p.lua", []byte(src))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, meta.Dependencies)
}

func TestParseSourceEmptyDependencies(t *testing.T) {
	t.Parallel()

	src := "# Dependencies:\nfunction setup() end\n"
	meta, _, err := ParseSource("p.lua", []byte(src))
	require.NoError(t, err)
	require.Nil(t, meta.Dependencies)
}

func TestParseSourceSelfDependency(t *testing.T) {
	t.Parallel()

	src := "# Plugin: loopy\n# Dependencies: loopy\nfunction setup() end\n"
	_, _, err := ParseSource("loopy.lua", []byte(src))
	var malformed ErrMalformedMetadata
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "loopy", malformed.Plugin)
}

func TestParseSourceInvalidPermission(t *testing.T) {
	t.Parallel()

	src := "# Permissions: root\nfunction setup() end\n"
	_, _, err := ParseSource("p.lua", []byte(src))
	require.ErrorAs(t, err, &ErrMalformedMetadata{})
}

func TestParseSourceUnrecognizedKeysIgnored(t *testing.T) {
	t.Parallel()

	src := "# Plugin: tidy\n# License: MIT\n# Homepage: example.com\nfunction setup() end\n"
	meta, _, err := ParseSource("tidy.lua", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "tidy", meta.Name)
}

func TestParseSourceHeaderEndsAtFirstCodeLine(t *testing.T) {
	t.Parallel()

	// The Version line after code is body, not header, and '#' there is a
	// Lua syntax error.
	src := "# Plugin: early\nfunction setup() end\n# Version: 9.9.9\n"
	_, _, err := ParseSource("early.lua", []byte(src))
	require.ErrorAs(t, err, &ErrMalformedMetadata{})
}

func TestParseSourceMissingEntryPoint(t *testing.T) {
	t.Parallel()

	src := "# Plugin: silent\nlocal x = 1\n"
	_, _, err := ParseSource("silent.lua", []byte(src))
	var missing ErrMissingEntryPoint
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "silent", missing.Plugin)
}

func TestParseSourceLocalSetupIsNotAnEntryPoint(t *testing.T) {
	t.Parallel()

	src := "local function setup() end\n"
	_, _, err := ParseSource("hidden.lua", []byte(src))
	require.ErrorAs(t, err, &ErrMissingEntryPoint{})
}

func TestParseSourceAssignedSetupIsAnEntryPoint(t *testing.T) {
	t.Parallel()

	src := "setup = function(host) end\n"
	_, _, err := ParseSource("assigned.lua", []byte(src))
	require.NoError(t, err)
}

func TestParseSourceSyntaxError(t *testing.T) {
	t.Parallel()

	src := "# Plugin: broken\nfunction setup(\n"
	_, _, err := ParseSource("broken.lua", []byte(src))
	var malformed ErrMalformedMetadata
	require.ErrorAs(t, err, &malformed)
}

func TestParseSourceNeverExecutes(t *testing.T) {
	t.Parallel()

	// Top-level error() would fire on execution; parsing must not run it.
	src := "error('should not run')\nfunction setup() end\n"
	_, _, err := ParseSource("inert.lua", []byte(src))
	require.NoError(t, err)
}

func TestHeaderLinesPreserveBodyPositions(t *testing.T) {
	t.Parallel()

	src := "# Plugin: lines\n# Version: 1.0.0\nfunction setup() end\n"
	_, body, err := ParseSource("lines.lua", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "\n\nfunction setup() end\n", body)
}
