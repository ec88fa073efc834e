package cli

import (
	"bytes"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/distrun/internal/logging"
	"github.com/mmr-tortoise/distrun/internal/model"
)

// captureLog swaps the default logger for one writing into a buffer and
// restores it when the test finishes.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(logging.NewHandler(&buf, slog.LevelDebug, false)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

// TestCheckRendezvousPort_Occupied verifies that a multi-node launch whose
// rendezvous port is already bound on this host produces a warning with a
// free-port suggestion, without failing the launch.
func TestCheckRendezvousPort_Occupied(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)

	buf := captureLog(t)
	checkRendezvousPort(&model.LaunchSpec{Nodes: 2, MasterPort: tcpAddr.Port})

	out := buf.String()
	assert.Contains(t, out, "rendezvous port is already in use")
	assert.Contains(t, out, "--master-port")
}

// TestCheckRendezvousPort_Quiet verifies the check stays silent for
// single-node launches and for free ports.
func TestCheckRendezvousPort_Quiet(t *testing.T) {
	buf := captureLog(t)

	// Single-node: no rendezvous, nothing to check.
	checkRendezvousPort(&model.LaunchSpec{Nodes: 1, MasterPort: 1})
	assert.Empty(t, buf.String())

	// Multi-node with a free port: pick one the OS considers bindable.
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	freePort := tcpAddr.Port
	require.NoError(t, listener.Close())

	checkRendezvousPort(&model.LaunchSpec{Nodes: 2, MasterPort: freePort})
	assert.Empty(t, buf.String())
}
