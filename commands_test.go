package aviron

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandsMissingMarkerIsProtocolError(t *testing.T) {
	c := testClient(t, func(req string) []byte {
		return []byte("ClamAV 1.4.1/test some garbage reply\x00")
	})

	_, err := c.VersionCommands(context.Background())
	require.Error(t, err)
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestVersionTrimsTrailingWhitespaceAndNul(t *testing.T) {
	v := versionCommand{}
	r := bufio.NewReader(strings.NewReader("ClamAV 1.4.1/27000  \x00"))
	got, err := v.decode(r)
	require.NoError(t, err)
	assert.Equal(t, "ClamAV 1.4.1/27000", got)
}

func TestStatsReturnsVerbatimMultiline(t *testing.T) {
	c := testClient(t, capableHandler("STATS", func(req string) []byte {
		return []byte("POOLS: 1\nSTATE: VALID PRIMARY\nTHREADS: live 1\nEND\x00")
	}))
	got, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Contains(t, got, "POOLS: 1")
	assert.Contains(t, got, "END")
}

func TestReloadAndShutdownSucceedOnAnyReply(t *testing.T) {
	c := testClient(t, capableHandler("RELOAD SHUTDOWN", func(req string) []byte {
		if strings.HasPrefix(req, "zRELOAD") {
			return []byte("RELOADING\x00")
		}
		return nil
	}))
	require.NoError(t, c.Reload(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestContScanDoesNotStopOnFirstHit(t *testing.T) {
	c := testClient(t, capableHandler("CONTSCAN", func(req string) []byte {
		return []byte("/tmp/a: Eicar FOUND\n/tmp/b: OK\n/tmp/c: Eicar2 FOUND\x00")
	}))
	res, err := c.ContScan(context.Background(), "/tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b", "/tmp/c"}, res.Paths())
	assert.True(t, res.HasVirus())
}

func TestMultiScanOrderingIsWhateverTheDaemonSent(t *testing.T) {
	c := testClient(t, capableHandler("MULTISCAN", func(req string) []byte {
		return []byte("/tmp/b: OK\n/tmp/a: OK\x00")
	}))
	res, err := c.MultiScan(context.Background(), "/tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/b", "/tmp/a"}, res.Paths())
}

func TestZeroLogIndependence(t *testing.T) {
	// Construction must never require a non-nil/no-op logger; the zero
	// value of zerolog.Logger is itself usable.
	ep, err := NewBuilder().Build()
	require.NoError(t, err)
	var zero zerolog.Logger
	c := NewClient(ep, zero)
	assert.NotNil(t, c)
}
