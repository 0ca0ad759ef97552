package transfer

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFTPDefaults(t *testing.T) {
	c := NewFTPClient(Options{Host: "files.example"})
	assert.Equal(t, 21, c.opts.Port)
	assert.Equal(t, 30*time.Second, c.opts.Timeout)
}

func TestFTPConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := NewFTPClient(Options{
		Host: "127.0.0.1", Port: port,
		User: "feeds", Password: "x",
		Timeout: time.Second,
	})
	_, err = c.DownloadToFile(context.Background(), "/x.zip", filepath.Join(t.TempDir(), "x.zip"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}
