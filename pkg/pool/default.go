package pool

import (
	"errors"
	"sync"
)

// ErrAlreadyInitialized is returned by a second InitDefault.
var ErrAlreadyInitialized = errors.New("default pool already initialized")

var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// InitDefault creates the process-wide pool and starts its sweeper. It may
// be called once; Default falls back to DefaultConfig when it never was.
func InitDefault(cfg Config, opts ...Option) (*Pool, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool != nil {
		return defaultPool, ErrAlreadyInitialized
	}
	defaultPool = New(cfg, opts...)
	defaultPool.Start()
	return defaultPool, nil
}

// Default returns the process-wide pool.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		defaultPool = New(DefaultConfig())
		defaultPool.Start()
	}
	return defaultPool
}
