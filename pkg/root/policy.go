package root

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/acorndb/pkg/acorn"
)

// Decision is what a PolicyEngine returns for a given payload on a given
// operation. Rule content and configuration are left to the caller; this
// package only defines the enforcement hook.
type Decision int

const (
	Allow Decision = iota
	Deny
	Redact
	Expire
)

// PolicyEngine is injected into a PolicyRoot. It deserializes the payload
// dynamically (json.RawMessage) because the root operates beneath the
// typed Tree boundary and has no compile-time knowledge of T.
type PolicyEngine interface {
	Evaluate(ctx *Context, payload json.RawMessage) (Decision, json.RawMessage)
}

// PolicyRoot temporarily deserializes the payload on stash and crack to
// consult an injected policy engine; it may reject (Deny), rewrite
// (Redact), or mark the Nut expired (Expire, crack-only — a policy can't
// retroactively expire a stash).
type PolicyRoot struct {
	sequence int
	engine   PolicyEngine
}

// NewPolicyRoot builds a policy-enforcement stage around engine.
func NewPolicyRoot(sequence int, engine PolicyEngine) *PolicyRoot {
	return &PolicyRoot{sequence: sequence, engine: engine}
}

func (r *PolicyRoot) Signature() string { return "policy" }
func (r *PolicyRoot) Sequence() int     { return r.sequence }

func (r *PolicyRoot) OnStash(data []byte, ctx *Context) ([]byte, error) {
	decision, rewritten := r.engine.Evaluate(ctx, json.RawMessage(data))
	switch decision {
	case Deny:
		return nil, fmt.Errorf("%w: document %s", acorn.ErrPolicyDenied, ctx.DocumentID)
	case Redact:
		return []byte(rewritten), nil
	default:
		return data, nil
	}
}

func (r *PolicyRoot) OnCrack(data []byte, ctx *Context) ([]byte, error) {
	decision, rewritten := r.engine.Evaluate(ctx, json.RawMessage(data))
	switch decision {
	case Deny:
		return nil, fmt.Errorf("%w: document %s", acorn.ErrPolicyDenied, ctx.DocumentID)
	case Redact:
		return []byte(rewritten), nil
	case Expire:
		ctx.MarkedExpired = true
		return data, nil
	default:
		return data, nil
	}
}
