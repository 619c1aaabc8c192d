package bundle_test

import (
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntry(t *testing.T) {
	testCases := []struct {
		name       string
		line       string
		wantKind   bundle.Kind
		wantString string
		wantErrMsg string
	}{{
		name:       "bare_hostname",
		line:       "Example.COM",
		wantKind:   bundle.KindWebsite,
		wantString: "example.com",
	}, {
		name:       "hostname_port",
		line:       "example.com:8080",
		wantKind:   bundle.KindWebsite,
		wantString: "example.com:8080",
	}, {
		name:       "ip",
		line:       "93.184.216.34",
		wantKind:   bundle.KindWebsite,
		wantString: "93.184.216.34",
	}, {
		name:       "ip_mask",
		line:       "10.0.0.0/8",
		wantKind:   bundle.KindWebsite,
		wantString: "10.0.0.0/8",
	}, {
		name:       "app",
		line:       "app:com.apple.Safari",
		wantKind:   bundle.KindApp,
		wantString: "app:com.apple.Safari",
	}, {
		name:       "wildcard",
		line:       "*.example.com",
		wantKind:   bundle.KindWebsite,
		wantString: "*.example.com",
	}, {
		name:       "empty",
		line:       "",
		wantErrMsg: "bundle: invalid entry: blank or comment line",
	}, {
		name:       "comment",
		line:       "# nope",
		wantErrMsg: "bundle: invalid entry: blank or comment line",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := bundle.ParseEntry(tc.line)
			if tc.wantErrMsg != "" {
				testutil.AssertErrorMsg(t, tc.wantErrMsg, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, e.Kind)
			assert.Equal(t, tc.wantString, e.String())
		})
	}
}

func TestParseBlocklist(t *testing.T) {
	const file = `
# comment, should be skipped

example.com
EXAMPLE.COM
app:com.apple.Safari
10.0.0.0/8
`

	entries, err := bundle.ParseBlocklist(strings.NewReader(file))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "10.0.0.0/8", entries[0].String())
	assert.Equal(t, "example.com", entries[1].String())
	assert.Equal(t, "app:com.apple.Safari", entries[2].String())
}

func TestWriteBlocklist(t *testing.T) {
	e1, err := bundle.NewWebsiteEntry("example.com", 0, -1)
	require.NoError(t, err)
	e2, err := bundle.NewAppEntry("com.apple.Safari")
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, bundle.WriteBlocklist(&buf, []bundle.Entry{e2, e1, e1}))

	assert.Equal(t, "example.com\napp:com.apple.Safari\n", buf.String())
}

func TestEntry_ValidateRule(t *testing.T) {
	good, err := bundle.NewWebsiteEntry("*.example.com", 0, -1)
	require.NoError(t, err)
	assert.NoError(t, good.ValidateRule())

	app, err := bundle.NewAppEntry("com.apple.Safari")
	require.NoError(t, err)
	assert.NoError(t, app.ValidateRule())
}
