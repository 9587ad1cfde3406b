package metrics

import (
	"time"

	"github.com/cuemby/acorndb/pkg/canopy"
	"github.com/cuemby/acorndb/pkg/grove"
)

// Collector periodically polls a Grove (and optionally a Canopy) and
// updates the package's Prometheus gauges from their snapshots.
type Collector struct {
	grove  *grove.Grove
	canopy *canopy.Canopy
	stopCh chan struct{}
}

// NewCollector constructs a Collector. canopyInstance may be nil when the
// node does not run discovery.
func NewCollector(g *grove.Grove, canopyInstance *canopy.Canopy) *Collector {
	return &Collector{
		grove:  g,
		canopy: canopyInstance,
		stopCh: make(chan struct{}),
	}
}

// Start begins polling on a 15s interval, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts polling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTreeMetrics()
	c.collectTangleMetrics()
	c.collectCanopyMetrics()
}

func (c *Collector) collectTreeMetrics() {
	stats := c.grove.GetNutStats()
	TreesTotal.Set(float64(len(stats)))
	for typeName, s := range stats {
		NutsStashedTotal.WithLabelValues(typeName).Set(float64(s.TotalStashed))
		NutsTossedTotal.WithLabelValues(typeName).Set(float64(s.TotalTossed))
		SquabblesResolvedTotal.WithLabelValues(typeName).Set(float64(s.SquabblesResolved))
		SmushesPerformedTotal.WithLabelValues(typeName).Set(float64(s.SmushesPerformed))
	}

	for _, info := range c.grove.GetTreeInfo() {
		NutCount.WithLabelValues(info.TypeName).Set(float64(info.NutCount))
	}
}

func (c *Collector) collectTangleMetrics() {
	tangles := c.grove.GetTangleStats()
	TanglesTotal.Set(float64(len(tangles)))
	for _, t := range tangles {
		var value float64
		switch t.Status {
		case "connected":
			value = 1
		case "reconnecting":
			value = 0.5
		default:
			value = 0
		}
		TangleStatus.WithLabelValues(t.URL).Set(value)
	}
}

func (c *Collector) collectCanopyMetrics() {
	if c.canopy == nil {
		return
	}
	DiscoveredNodesTotal.Set(float64(len(c.canopy.DiscoveredNodes())))
}
