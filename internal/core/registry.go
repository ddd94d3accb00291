package core

import (
	"sort"
	"sync"
)

var (
	mu       sync.RWMutex
	registry = map[string]Command{}
)

// RegisterCommand registers cmd wrapped in mws; the first middleware is
// the outermost.
func RegisterCommand(cmd Command, mws ...Middleware) {
	wrapped := ApplyMiddlewares(cmd, mws...)
	mu.Lock()
	defer mu.Unlock()
	registry[cmd.Name()] = wrapped
}

// GetCommand returns the command with the given name
func GetCommand(name string) (Command, bool) {
	mu.RLock()
	defer mu.RUnlock()
	cmd, ok := registry[name]
	return cmd, ok
}

// AllCommands returns all registered commands sorted by name
func AllCommands() []Command {
	mu.RLock()
	list := make([]Command, 0, len(registry))
	for _, cmd := range registry {
		list = append(list, cmd)
	}
	mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// ResetCommands empties the registry.
func ResetCommands() {
	mu.Lock()
	defer mu.Unlock()
	registry = map[string]Command{}
}
