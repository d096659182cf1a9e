package fscache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/pkg/fscache"
)

func TestParseShare(t *testing.T) {
	share, err := fscache.ParseShare(`\\fileserver01\render`)
	require.NoError(t, err)
	assert.Equal(t, "fileserver01", share.Host)
	assert.Equal(t, "render", share.Name)
	assert.Equal(t, `\\fileserver01\render`, share.String())
}

func TestParseShareNoSubpath(t *testing.T) {
	share, err := fscache.ParseShare(`\\fileserver01`)
	require.NoError(t, err)
	assert.Equal(t, "fileserver01", share.Host)
	assert.Equal(t, "", share.Name)
}

func TestParseShareInvalid(t *testing.T) {
	_, err := fscache.ParseShare(`\\`)
	assert.Error(t, err)
}

func TestResolveRootDriveLetter(t *testing.T) {
	share := fscache.Share{Host: "luna_drive_z", Name: "whatever"}
	root, err := share.ResolveRoot()
	require.NoError(t, err)
	assert.Equal(t, "Z", root)
}

func TestResolveRootDriveLetterEmpty(t *testing.T) {
	share := fscache.Share{Host: "luna_drive_", Name: "x"}
	_, err := share.ResolveRoot()
	assert.Error(t, err)
}

func TestResolveRootNFS(t *testing.T) {
	encoded := "L21udC9kYXRh" // base64("/mnt/data")
	share := fscache.Share{Host: "luna_nfs", Name: encoded}
	root, err := share.ResolveRoot()
	require.NoError(t, err)
	assert.Equal(t, "/mnt/data", root)
}

func TestResolveRootDefault(t *testing.T) {
	share := fscache.Share{Host: "myhost", Name: "project_x"}
	root, err := share.ResolveRoot()
	require.NoError(t, err)
	assert.Equal(t, "PROJECT_X", root)
}

func TestIntercepted(t *testing.T) {
	cases := []struct {
		share string
		want  bool
	}{
		{"IPC$", false},
		{"ipc$", false},
		{"ADMIN$", false},
		{"render", true},
		{`some\path\my_seekscale_data`, false},
		{`some\path\MY_SEEKSCALE_DATA`, false},
		{"project", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, fscache.Intercepted(c.share), "share=%q", c.share)
	}
}

func TestRewriteHost(t *testing.T) {
	share := fscache.Share{Host: "original", Name: "render"}

	unchanged := fscache.RewriteHost(share, "")
	assert.Equal(t, share, unchanged)

	rewritten := fscache.RewriteHost(share, "forced-host")
	assert.Equal(t, "forced-host", rewritten.Host)
	assert.Equal(t, "render", rewritten.Name)
}
