package assessment

import (
	"sort"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// QueueEntry is a triggered domain waiting to run.
type QueueEntry struct {
	Domain   string `json:"domain"`
	Priority int    `json:"priority"`
	Boosted  bool   `json:"boosted,omitempty"`
}

// routing is the part of the session state the router owns.
type routing struct {
	queue          []QueueEntry
	completed      map[string]bool
	blocked        map[string]bool
	terminalQueued bool
}

func newRouting() routing {
	return routing{completed: make(map[string]bool), blocked: make(map[string]bool)}
}

// Router decides which optional domains run and in which order. The queue is
// sorted by effective priority, descending, stable on ties so the first
// triggered domain wins.
type Router struct {
	cat     *catalog.Catalog
	enabled bool
}

func NewRouter(cat *catalog.Catalog, branching bool) *Router {
	return &Router{cat: cat, enabled: branching}
}

// Evaluate applies every domain entry trigger against the record. active
// lists domains that have begun and are not complete.
func (r *Router) Evaluate(st *routing, rec *Record, active map[string]bool) {
	if !r.enabled {
		return
	}
	for i := range r.cat.Domains {
		d := &r.cat.Domains[i]
		r.Apply(st, d.ID, d.Triggers, rec, active)
	}
}

// Apply fires the given triggers. owner is the default target.
func (r *Router) Apply(st *routing, owner string, triggers []catalog.Trigger, rec *Record, active map[string]bool) {
	if !r.enabled {
		return
	}
	for _, t := range triggers {
		target := t.Domain
		if target == "" {
			target = owner
		}
		if !All(t.When, rec) || !r.eligible(st, target, active) {
			continue
		}
		switch t.Action {
		case catalog.ActionEnter:
			r.enqueue(st, target, false)
		case catalog.ActionPrioritize:
			r.enqueue(st, target, true)
		case catalog.ActionSkip:
			st.blocked[target] = true
			r.remove(st, target)
		}
	}
}

// Prioritize queues a domain with boosted priority outside of trigger
// evaluation. Deferred escalations use it even when branching is off.
func (r *Router) Prioritize(st *routing, domainID string, active map[string]bool) {
	if !r.eligible(st, domainID, active) {
		return
	}
	r.enqueue(st, domainID, true)
}

// Next pops the highest priority domain. When the queue is empty the
// terminal domain is returned exactly once; after that Next returns "".
func (r *Router) Next(st *routing) string {
	if len(st.queue) > 0 {
		next := st.queue[0].Domain
		st.queue = st.queue[1:]
		return next
	}
	if st.terminalQueued {
		return ""
	}
	st.terminalQueued = true
	if t := r.cat.TerminalDomain(); t != nil {
		return t.ID
	}
	return ""
}

func (r *Router) eligible(st *routing, id string, active map[string]bool) bool {
	d, ok := r.cat.Domain(id)
	if !ok || id == r.cat.Triage.ID || d.Terminal || d.Emergency {
		return false
	}
	return !st.completed[id] && !st.blocked[id] && !active[id]
}

func (r *Router) enqueue(st *routing, id string, boost bool) {
	for i := range st.queue {
		if st.queue[i].Domain != id {
			continue
		}
		if boost && !st.queue[i].Boosted {
			st.queue[i].Priority += r.cat.Thresholds.PrioritizeBoost
			st.queue[i].Boosted = true
			r.sort(st)
		}
		return
	}
	d, _ := r.cat.Domain(id)
	e := QueueEntry{Domain: id, Priority: d.Priority}
	if boost {
		e.Priority += r.cat.Thresholds.PrioritizeBoost
		e.Boosted = true
	}
	st.queue = append(st.queue, e)
	r.sort(st)
}

func (r *Router) remove(st *routing, id string) {
	out := st.queue[:0]
	for _, e := range st.queue {
		if e.Domain != id {
			out = append(out, e)
		}
	}
	st.queue = out
}

func (r *Router) sort(st *routing) {
	sort.SliceStable(st.queue, func(i, j int) bool {
		return st.queue[i].Priority > st.queue[j].Priority
	})
}
