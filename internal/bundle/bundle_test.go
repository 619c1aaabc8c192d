package bundle_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundle_Validate(t *testing.T) {
	b := bundle.New("Games", bundle.ColorPurple, 0)

	testutil.AssertErrorMsg(
		t,
		`bundle: invalid bundle: bundle "Games" has no entries`,
		b.Validate(),
	)

	e, err := bundle.NewWebsiteEntry("steampowered.com", 0, -1)
	require.NoError(t, err)
	b.AddEntry(e)

	assert.NoError(t, b.Validate())
}

func TestBundle_AddRemoveEntry(t *testing.T) {
	b := bundle.New("Social", bundle.ColorBlue, 0)

	e1, err := bundle.NewWebsiteEntry("facebook.com", 0, -1)
	require.NoError(t, err)
	e2, err := bundle.NewWebsiteEntry("instagram.com", 0, -1)
	require.NoError(t, err)

	b.AddEntry(e1)
	b.AddEntry(e2)
	b.AddEntry(e1)
	assert.Len(t, b.Entries, 2)

	b.RemoveEntry(e1)
	require.Len(t, b.Entries, 1)
	assert.Equal(t, "instagram.com", b.Entries[0].String())
}

func TestBundle_WebsiteAppEntries(t *testing.T) {
	b := bundle.New("Mixed", bundle.ColorGray, 0)

	web, err := bundle.NewWebsiteEntry("example.com", 0, -1)
	require.NoError(t, err)
	app, err := bundle.NewAppEntry("com.apple.Safari")
	require.NoError(t, err)

	b.AddEntry(web)
	b.AddEntry(app)

	assert.Len(t, b.WebsiteEntries(), 1)
	assert.Len(t, b.AppEntries(), 1)
}

func TestPresets(t *testing.T) {
	presets := bundle.Presets()
	require.NotEmpty(t, presets)

	for _, p := range presets {
		assert.NoError(t, p.Validate())
	}
}
