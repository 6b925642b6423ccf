package discovery

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeAnnouncement(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		raw, err := json.Marshal(announcement{InstanceID: "abc", Name: "alice", Addr: "192.168.1.5"})
		require.NoError(t, err)

		record, err := decodeAnnouncement(raw)

		require.NoError(t, err)
		assert.Equal(t, "abc", record.InstanceID)
		assert.Equal(t, "alice", record.Name)
		assert.Equal(t, "192.168.1.5", record.Addr)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		_, err := decodeAnnouncement([]byte("not json"))
		require.Error(t, err)
	})

	t.Run("MissingInstanceID", func(t *testing.T) {
		_, err := decodeAnnouncement([]byte(`{"name":"alice"}`))
		require.ErrorIs(t, err, errMissingInstanceID)
	})
}

func TestMulticast_Observe(t *testing.T) {
	service := NewMulticast(testLogger(), "239.255.71.78:9753", time.Second)

	// Given: this instance's own announcement echoed back
	own, err := json.Marshal(announcement{InstanceID: service.instanceID, Name: "me"})
	require.NoError(t, err)

	// When: it is observed
	service.observe(own, time.Now())

	// Then: it is not recorded as a peer
	assert.Empty(t, service.Peers())

	// When: another instance announces itself
	other, err := json.Marshal(announcement{InstanceID: "peer-1", Name: "bob", Addr: "192.168.1.7"})
	require.NoError(t, err)
	service.observe(other, time.Now())

	// Then: it shows up in the peer list
	peers := service.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "peer-1", peers[0].InstanceID)
	assert.Equal(t, "bob", peers[0].Name)
	assert.Equal(t, "192.168.1.7", peers[0].Addr)

	// And: a re-announcement updates the existing entry instead of duplicating it
	service.observe(other, time.Now())
	assert.Len(t, service.Peers(), 1)
}

func TestMulticast_Peers_PrunesStale(t *testing.T) {
	service := NewMulticast(testLogger(), "239.255.71.78:9753", time.Second)

	fresh, err := json.Marshal(announcement{InstanceID: "fresh", Name: "bob"})
	require.NoError(t, err)
	stale, err := json.Marshal(announcement{InstanceID: "stale", Name: "carol"})
	require.NoError(t, err)

	// Given: one peer seen now and one last seen past the staleness window
	service.observe(fresh, time.Now())
	service.observe(stale, time.Now().Add(-(staleFactor+1)*time.Second))

	// When: the peer list is read
	peers := service.Peers()

	// Then: only the fresh peer remains, and the stale one is forgotten
	require.Len(t, peers, 1)
	assert.Equal(t, "fresh", peers[0].InstanceID)
	assert.NotContains(t, service.peers, "stale")
}

func TestMulticast_StopWithoutStart(t *testing.T) {
	service := NewMulticast(testLogger(), "239.255.71.78:9753", time.Second)

	require.ErrorIs(t, service.Stop(), ErrNotStarted)
}
