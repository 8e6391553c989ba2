package telegramapi

import "sync"

var (
	registryMu sync.Mutex
	factory    func() Client
)

// RegisterFactory installs the concrete client implementation the daemon
// uses. Called from the implementation package's init.
func RegisterFactory(f func() Client) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factory = f
}

// RegisteredFactory returns the installed client factory, if any.
func RegisteredFactory() (func() Client, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	return factory, factory != nil
}
