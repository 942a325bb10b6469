package utils

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Defers maintains ordered LIFO list of named cleanups to handle on the defer call.
type Defers interface {
	// Add the cleanup to the deferred list.
	// The new cleanup will be inserted at the beginning of the list.
	Add(name string, f func() error)
	// CallAll calls all deferred cleanups in the reverse order.
	// Each cleanup is called at most once, failures are logged and do not stop the remaining cleanups.
	CallAll()
}

type namedDefer struct {
	name string
	f    func() error
}

type defaultDefers struct {
	sync.Mutex
	fs     []namedDefer
	logger hclog.Logger
}

// NewDefers returns a new instance of Defers.
func NewDefers(logger hclog.Logger) Defers {
	return &defaultDefers{
		fs:     []namedDefer{},
		logger: logger,
	}
}

func (ds *defaultDefers) Add(name string, f func() error) {
	ds.Lock()
	defer ds.Unlock()
	ds.fs = append([]namedDefer{{name: name, f: f}}, ds.fs...)
}

func (ds *defaultDefers) CallAll() {
	ds.Lock()
	fs := ds.fs
	ds.fs = []namedDefer{}
	ds.Unlock()
	for _, d := range fs {
		if err := d.f(); err != nil {
			ds.logger.Warn("cleanup failed", "cleanup", d.name, "reason", err)
			continue
		}
		ds.logger.Trace("cleanup finished", "cleanup", d.name)
	}
}
