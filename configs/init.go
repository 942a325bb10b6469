package configs

import (
	"sync"

	"github.com/spf13/pflag"
)

type flagBase struct {
	sync.Mutex
	flagSet *pflag.FlagSet
}

func (fb *flagBase) initFlagSet() bool {
	fb.Lock()
	defer fb.Unlock()
	if fb.flagSet == nil {
		fb.flagSet = &pflag.FlagSet{}
		return true
	}
	return false
}

// flagChanged returns true when the named flag was explicitly set on the command line.
func (fb *flagBase) flagChanged(name string) bool {
	fb.Lock()
	defer fb.Unlock()
	if fb.flagSet == nil {
		return false
	}
	if f := fb.flagSet.Lookup(name); f != nil {
		return f.Changed
	}
	return false
}

// ValidatingConfig is a config which can be validated.
type ValidatingConfig interface {
	Validate() error
}

// EnvironmentInheriting is a config which can take the environment
// and amend its state from the environment provided settings.
// Explicitly set flags always take precedence over the environment.
type EnvironmentInheriting interface {
	UpdateFromEnvironment(map[string]string) error
}
