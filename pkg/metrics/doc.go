/*
Package metrics provides Prometheus metrics collection and exposition for an
AcornDB node.

The package defines and registers gauges, counters, and histograms covering
Tree activity, Tangle replication status, Canopy discovery, and the Grove
HTTP surface. Metrics are exposed over HTTP for scraping by a Prometheus
server, alongside health/readiness/liveness endpoints in the same style.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Collector                      │          │
	│  │  - Polls Grove.GetNutStats/GetTreeInfo      │          │
	│  │  - Polls Grove.GetTangleStats               │          │
	│  │  - Polls Canopy.DiscoveredNodes             │          │
	│  │  - Runs on a 15s ticker                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                            │          │
	│  │  - Format: Prometheus text exposition        │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Tree metrics:
  - acorn_trees_total (gauge) — Trees currently planted in the Grove.
  - acorn_nuts_stashed_total{type} (gauge mirroring a cumulative counter) — Stash count per type.
  - acorn_nuts_tossed_total{type} — Toss count per type.
  - acorn_squabbles_resolved_total{type} — conflicting writes a Judge resolved per type.
  - acorn_smushes_performed_total{type} — Stash calls a Judge left the current value unchanged for.
  - acorn_nut_count{type} — live Nut count per type.

Tangle metrics:
  - acorn_tangles_total (gauge) — active Tangle count.
  - acorn_tangle_status{peer} (gauge) — 1 connected, 0.5 reconnecting, 0 dead.

Canopy metrics:
  - acorn_discovered_nodes_total (gauge) — peers currently known to discovery.

HTTP surface metrics:
  - acorn_http_requests_total{route,status} (counter)
  - acorn_http_request_duration_seconds{route} (histogram)

Cache/tier metrics:
  - acorn_near_cache_hits_total / acorn_near_cache_misses_total (counters)
  - acorn_tiered_archived_total / acorn_tiered_restored_total (counters)

# Health Endpoints

HealthHandler, ReadyHandler, and LivenessHandler mirror the /health, /ready,
and /live convention: readiness additionally requires the "storage" and
"grove" components to have been registered healthy via RegisterComponent.
*/
package metrics
