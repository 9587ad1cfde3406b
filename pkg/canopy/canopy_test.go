package canopy

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/grove"
)

func newTestCanopy(t *testing.T, autoConnect bool) *Canopy {
	t.Helper()
	c, err := New(grove.New(), Options{
		DiscoveryPort: 0,
		HTTPPort:      5000,
		Cadence:       20 * time.Millisecond,
		PruneAfter:    60 * time.Millisecond,
		AutoConnect:   autoConnect,
	})
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestCanopy_HandlesPeerAnnouncement(t *testing.T) {
	c := newTestCanopy(t, false)

	other := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	raw := []byte(announcePrefix + `{"node_id":"` + other + `","http_port":5001,"tree_types":["Note"]}`)
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 50505}

	c.handleDatagram(raw, addr)

	nodes := c.DiscoveredNodes()
	require.Contains(t, nodes, other)
	assert.Equal(t, "10.0.0.2:5001", nodes[other].Endpoint)
	assert.Equal(t, []string{"Note"}, nodes[other].TreeTypes)
}

func TestCanopy_LeavingDatagramRemovesNode(t *testing.T) {
	c := newTestCanopy(t, false)
	other := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 50505}

	c.handleDatagram([]byte(announcePrefix+`{"node_id":"`+other+`","http_port":5001}`), addr)
	require.Contains(t, c.DiscoveredNodes(), other)

	c.handleDatagram([]byte(announcePrefix+`{"node_id":"`+other+`","leaving":true}`), addr)
	assert.NotContains(t, c.DiscoveredNodes(), other)
}

func TestCanopy_IgnoresSelfAnnouncements(t *testing.T) {
	c := newTestCanopy(t, false)
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 50505}
	c.handleDatagram([]byte(announcePrefix+`{"node_id":"`+c.NodeID()+`"}`), addr)
	assert.Empty(t, c.DiscoveredNodes())
}

func TestCanopy_PrunesStaleSightings(t *testing.T) {
	c := newTestCanopy(t, false)
	c.nodesMu.Lock()
	c.nodes["stale"] = DiscoveredNode{NodeID: "stale", LastSeen: time.Now().Add(-time.Hour)}
	c.nodesMu.Unlock()

	c.prune()

	assert.NotContains(t, c.DiscoveredNodes(), "stale")
}

func TestCanopy_AutoConnectEntanglesOnFirstSighting(t *testing.T) {
	g := grove.New()
	c, err := New(g, Options{AutoConnect: true})
	require.NoError(t, err)
	defer c.Stop()

	other := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 50505}
	c.handleDatagram([]byte(announcePrefix+`{"node_id":"`+other+`","http_port":5001}`), addr)

	assert.Len(t, g.GetTangleStats(), 0, "an empty Grove has no Trees to entangle, so EntangleAll is a no-op")

	c.mu.Lock()
	connected := c.connected[other]
	c.mu.Unlock()
	assert.True(t, connected, "first sighting should mark the node as auto-entangled")
}
