package safety

import (
	"strings"
	"sync"
)

// KillSwitch is the operator-controlled stop for all engagement, globally or
// for a single platform. It is safe for concurrent use.
type KillSwitch struct {
	mu        sync.RWMutex
	global    bool
	platforms map[string]bool
}

// NewKillSwitch returns an inactive switch.
func NewKillSwitch() *KillSwitch {
	return &KillSwitch{platforms: make(map[string]bool)}
}

// Set activates or clears the switch. An empty platform targets the global switch.
func (k *KillSwitch) Set(platform string, active bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if platform == "" {
		k.global = active
		return
	}
	k.platforms[strings.ToLower(platform)] = active
}

// Global reports whether the global switch is active.
func (k *KillSwitch) Global() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.global
}

// Platform reports whether the switch for platform is active.
func (k *KillSwitch) Platform(platform string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.platforms[strings.ToLower(platform)]
}

// Snapshot returns the global state and the active platforms.
func (k *KillSwitch) Snapshot() (bool, []string) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var active []string
	for p, on := range k.platforms {
		if on {
			active = append(active, p)
		}
	}
	return k.global, active
}
