// Package notify carries user-facing notices out of the cart engine. The
// engine treats the surface as fire-and-forget: a misbehaving sink must
// never propagate back into a cart operation.
package notify

import "sync"

// Kind classifies a notice for presentation.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
	KindError   Kind = "error"
)

// Notice is one user-visible message. Action, when set, names a follow-up
// the presentation layer can offer (e.g. "view-cart").
type Notice struct {
	Kind   Kind
	Title  string
	Body   string
	Action string
}

// Notifier delivers notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// Func adapts a function into a Notifier.
type Func func(n Notice)

func (f Func) Notify(n Notice) { f(n) }

// Recorder collects notices for inspection in tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}
