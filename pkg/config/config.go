// Package config persists browserkit settings as sections of a JSON file.
package config

import (
	"sync"
)

var (
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize loads the config file at configPath (or the default path)
// into the global manager. Call once at startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	if err := manager.RegisterSection(NewLauncherSection()); err != nil {
		return err
	}
	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global manager. It panics before Initialize.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized reports whether Initialize has succeeded.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetLauncher returns the launcher section, or nil before Initialize.
func GetLauncher() *LauncherSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDLauncher)
	if !ok {
		return nil
	}
	launcher, _ := section.(*LauncherSection)
	return launcher
}
