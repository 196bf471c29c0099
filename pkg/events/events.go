// Package events implements the callback dispatch bus described in
// spec.md Design Note 3: components register handlers against named
// events and a phase (before/after); the supervisor invokes them
// synchronously at defined points in the orchestration, in place of the
// original's runtime discovery of "before_X"/"after_X"-prefixed methods.
package events

import "sync"

// Tag names a dispatch point in the orchestration, e.g.
// "launch_all_components", "decide_verification_task".
type Tag string

// Well-known dispatch points the supervisor invokes.
const (
	TagLaunchAllComponents         Tag = "launch_all_components"
	TagDecideVerificationTask      Tag = "decide_verification_task"
	TagGenerateAllVerificationTasks Tag = "generate_all_verification_tasks"
	TagExtractCommonAttrs          Tag = "extract_common_prj_attrs"
)

// Phase selects whether a handler runs before or after the event body.
type Phase int

const (
	PhaseBefore Phase = iota
	PhaseAfter
)

// Context is passed to every handler; it carries whatever the dispatch
// site chooses to expose (mqs, ids, ...). Handlers type-assert the field
// they need.
type Context struct {
	JobID string
	Data  map[string]any
}

// Handler reacts to a dispatch. It returns an error to abort the
// remaining handlers at that phase.
type Handler func(ctx *Context) error

type registration struct {
	tag     Tag
	phase   Phase
	handler Handler
}

// Bus holds the registered handlers and dispatches them synchronously.
type Bus struct {
	mu   sync.Mutex
	regs []registration
}

// NewBus creates an empty callback bus.
func NewBus() *Bus {
	return &Bus{}
}

// Register adds a handler for a tag at a phase. Before handlers run in
// registration order; after handlers run in reverse registration order.
func (b *Bus) Register(tag Tag, phase Phase, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs = append(b.regs, registration{tag: tag, phase: phase, handler: h})
}

// Before runs every before-handler registered for tag, in order, stopping
// at the first error.
func (b *Bus) Before(tag Tag, ctx *Context) error {
	return b.dispatch(tag, PhaseBefore, ctx, false)
}

// After runs every after-handler registered for tag, in reverse
// registration order, stopping at the first error.
func (b *Bus) After(tag Tag, ctx *Context) error {
	return b.dispatch(tag, PhaseAfter, ctx, true)
}

func (b *Bus) dispatch(tag Tag, phase Phase, ctx *Context, reverse bool) error {
	b.mu.Lock()
	var matched []Handler
	for _, r := range b.regs {
		if r.tag == tag && r.phase == phase {
			matched = append(matched, r.handler)
		}
	}
	b.mu.Unlock()

	if reverse {
		for i := len(matched) - 1; i >= 0; i-- {
			if err := matched[i](ctx); err != nil {
				return err
			}
		}
		return nil
	}
	for _, h := range matched {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}
