package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransport_ListenBindsToRequestedPort(t *testing.T) {
	t.Parallel()
	c, err := Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer c.Close()
	require.NotZero(t, c.Port())
}

func TestTransport_RoundTrip(t *testing.T) {
	t.Parallel()
	srv, err := Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Close()

	cl, err := Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer cl.Close()

	payload := []byte("hello-rip")
	n, err := cl.WriteTo(payload, "127.0.0.1", srv.Port())
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NoError(t, srv.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	nr, addr, err := srv.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf[:nr])
	require.NotNil(t, addr)
}

func TestTransport_ReadDeadlineTimesOut(t *testing.T) {
	t.Parallel()
	c, err := Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	buf := make([]byte, 64)
	_, _, err = c.ReadFrom(buf)
	require.Error(t, err)
}
