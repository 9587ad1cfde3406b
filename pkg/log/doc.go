/*
Package log provides structured logging for an AcornDB node using zerolog.

The package wraps zerolog to give JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity for production use.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog.Logger instance                  │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout or custom writer          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("canopy")                  │          │
	│  │  - WithNodeID("node-abc123")                │          │
	│  │  - WithTree("Note")                         │          │
	│  │  - WithTangle("tangle-xyz")                 │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	import "github.com/cuemby/acorndb/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("grove opened")
	log.Debug("checking tangle backoff state")
	log.Warn("near cache eviction rate high")
	log.Error("failed to reach peer")

Structured logging:

	log.Logger.Info().
		Str("tree", "Note").
		Int("nut_count", 42).
		Msg("tree planted")

Context loggers:

	treeLog := log.WithTree("Note")
	treeLog.Info().Msg("stash accepted")

	tangleLog := log.WithTangle(tangleID)
	tangleLog.Error().Err(err).Msg("tangle transport failure")

# Design Patterns

Global Logger Pattern — a single package-level Logger instance,
initialized once at process start and accessible from every package
without being passed explicitly.

Context Logger Pattern — child loggers created with With* helpers carry
their context fields (tree, tangle, node) into every subsequent log
line without repeating them at each call site.

# Security

Never log secret or encryption key material; pkg/root's encryption
layer in particular must not log plaintext payloads or key bytes.
*/
package log
