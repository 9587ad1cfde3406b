// Package canopy implements UDP broadcast discovery and auto-mesh formation:
// nodes announce themselves periodically, prune stale sightings, and
// optionally auto-entangle against newly discovered peers.
package canopy

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/acorndb/pkg/grove"
	"github.com/cuemby/acorndb/pkg/log"
)

// announcePrefix tags every discovery datagram so a receiver on a shared
// broadcast domain can cheaply discard unrelated UDP traffic.
const announcePrefix = "CANOPY:"

const (
	defaultCadence    = 5 * time.Second
	defaultPruneAfter = 30 * time.Second
)

// Announcement is the wire shape of one discovery datagram.
type Announcement struct {
	NodeID    string   `json:"node_id"`
	HTTPPort  int      `json:"http_port"`
	TreeCount int      `json:"tree_count"`
	TreeTypes []string `json:"tree_types"`
	Timestamp int64    `json:"timestamp"`
	Leaving   bool     `json:"leaving,omitempty"`
}

// DiscoveredNode is one entry of the canopy's peer table.
type DiscoveredNode struct {
	NodeID    string
	Endpoint  string
	TreeTypes []string
	LastSeen  time.Time
}

// Options configures a Canopy's broadcast and pruning behavior.
type Options struct {
	// DiscoveryPort is the UDP port both broadcast and listen bind to.
	DiscoveryPort int
	// HTTPPort is advertised in this node's own announcements, and used to
	// build the http://endpoint passed to EntangleAll on first sighting.
	HTTPPort int
	// Cadence is how often this node broadcasts. Zero uses the default (5s).
	Cadence time.Duration
	// PruneAfter is how stale a sighting may get before it is dropped.
	// Zero uses the default (30s).
	PruneAfter time.Duration
	// AutoConnect entangles against newly discovered nodes automatically.
	AutoConnect bool
}

func (o Options) withDefaults() Options {
	if o.Cadence <= 0 {
		o.Cadence = defaultCadence
	}
	if o.PruneAfter <= 0 {
		o.PruneAfter = defaultPruneAfter
	}
	return o
}

// Canopy owns the discovery broadcaster and listener for one node.
type Canopy struct {
	nodeID string
	grove  *grove.Grove
	opts   Options

	conn *net.UDPConn

	mu        sync.RWMutex
	connected map[string]bool // node_id -> already auto-entangled

	nodesMu sync.RWMutex
	nodes   map[string]DiscoveredNode

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New binds the discovery UDP socket and returns an unstarted Canopy. g may
// be nil if this node only listens (tests, non-auto-connect observers).
func New(g *grove.Grove, opts Options) (*Canopy, error) {
	opts = opts.withDefaults()
	if opts.DiscoveryPort <= 0 {
		opts.DiscoveryPort = 50505
	}

	addr := &net.UDPAddr{Port: opts.DiscoveryPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("canopy: bind discovery port %d: %w", opts.DiscoveryPort, err)
	}

	return &Canopy{
		nodeID:    uuid.NewString(),
		grove:     g,
		opts:      opts,
		conn:      conn,
		connected: make(map[string]bool),
		nodes:     make(map[string]DiscoveredNode),
		stopCh:    make(chan struct{}),
	}, nil
}

// NodeID returns this Canopy's self-identifier, used to ignore self-sightings.
func (c *Canopy) NodeID() string { return c.nodeID }

// Start launches the broadcaster, listener, and pruner as background
// activities. An immediate extra announcement fires before the first tick.
func (c *Canopy) Start() {
	c.broadcast(false)

	c.wg.Add(3)
	go c.broadcastLoop()
	go c.listenLoop()
	go c.pruneLoop()
}

// Stop emits a final "leaving" datagram, halts background activity, and
// closes the socket.
func (c *Canopy) Stop() {
	c.broadcast(true)
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
	_ = c.conn.Close()
}

func (c *Canopy) broadcastLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.Cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.broadcast(false)
		case <-c.stopCh:
			return
		}
	}
}

func (c *Canopy) broadcast(leaving bool) {
	treeTypes := []string{}
	if c.grove != nil {
		treeTypes = c.grove.TypeNames()
	}

	ann := Announcement{
		NodeID:    c.nodeID,
		HTTPPort:  c.opts.HTTPPort,
		TreeCount: len(treeTypes),
		TreeTypes: treeTypes,
		Timestamp: time.Now().Unix(),
		Leaving:   leaving,
	}
	payload, err := json.Marshal(ann)
	if err != nil {
		log.WithComponent("canopy").Error().Err(err).Msg("marshal announcement failed")
		return
	}

	dgram := append([]byte(announcePrefix), payload...)
	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: c.opts.DiscoveryPort}
	if _, err := c.conn.WriteTo(dgram, broadcastAddr); err != nil {
		log.WithComponent("canopy").Debug().Err(err).Msg("broadcast failed")
	}
}

func (c *Canopy) listenLoop() {
	defer c.wg.Done()
	buf := make([]byte, 2048)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		c.handleDatagram(buf[:n], addr)
	}
}

func (c *Canopy) handleDatagram(data []byte, addr *net.UDPAddr) {
	prefix := []byte(announcePrefix)
	if len(data) < len(prefix) || string(data[:len(prefix)]) != announcePrefix {
		return
	}

	var ann Announcement
	if err := json.Unmarshal(data[len(prefix):], &ann); err != nil {
		// A datagram whose JSON does not parse, including one truncated
		// mid-object, is dropped; fields absent from a well-formed object
		// are left at their zero values.
		return
	}
	if ann.NodeID == "" || ann.NodeID == c.nodeID {
		return
	}

	if ann.Leaving {
		c.nodesMu.Lock()
		delete(c.nodes, ann.NodeID)
		c.nodesMu.Unlock()
		return
	}

	endpoint := fmt.Sprintf("%s:%d", addr.IP.String(), ann.HTTPPort)
	firstSighting := false

	c.nodesMu.Lock()
	if _, seen := c.nodes[ann.NodeID]; !seen {
		firstSighting = true
	}
	c.nodes[ann.NodeID] = DiscoveredNode{
		NodeID:    ann.NodeID,
		Endpoint:  endpoint,
		TreeTypes: ann.TreeTypes,
		LastSeen:  time.Now(),
	}
	c.nodesMu.Unlock()

	if firstSighting && c.opts.AutoConnect && c.grove != nil {
		c.autoEntangle(ann.NodeID, endpoint)
	}
}

func (c *Canopy) autoEntangle(nodeID, endpoint string) {
	c.mu.Lock()
	if c.connected[nodeID] {
		c.mu.Unlock()
		return
	}
	c.connected[nodeID] = true
	c.mu.Unlock()

	url := "http://" + endpoint
	if err := c.grove.EntangleAll(url); err != nil {
		log.WithComponent("canopy").Error().Err(err).Str("node_id", nodeID).Msg("auto-entangle failed")
	}
}

func (c *Canopy) pruneLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PruneAfter / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Canopy) prune() {
	cutoff := time.Now().Add(-c.opts.PruneAfter)
	c.nodesMu.Lock()
	defer c.nodesMu.Unlock()
	for id, n := range c.nodes {
		if n.LastSeen.Before(cutoff) {
			delete(c.nodes, id)
		}
	}
}

// DiscoveredNodes returns a snapshot of every currently-known peer.
func (c *Canopy) DiscoveredNodes() map[string]DiscoveredNode {
	c.nodesMu.RLock()
	defer c.nodesMu.RUnlock()
	out := make(map[string]DiscoveredNode, len(c.nodes))
	for k, v := range c.nodes {
		out[k] = v
	}
	return out
}
