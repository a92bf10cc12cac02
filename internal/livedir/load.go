package livedir

import "context"

// Load is the future for an in-flight listing or fault-in. It completes
// exactly once; waiters share the result.
type Load struct {
	done  chan struct{}
	entry PathEntry
	err   error
}

func newLoad() *Load {
	return &Load{done: make(chan struct{})}
}

func (l *Load) finish(entry *PathEntry, err error) {
	if entry != nil {
		l.entry = *entry
	}
	l.err = err
	close(l.done)
}

// Done is closed when the load completes.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Err returns the load error. It is nil until Done is closed.
func (l *Load) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Entry returns the resolved entry. It is the zero value until Done is
// closed or if the load failed.
func (l *Load) Entry() PathEntry {
	select {
	case <-l.done:
		return l.entry
	default:
		return PathEntry{}
	}
}

// Wait blocks until the load completes or ctx is done.
func (l *Load) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Load) settled() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
