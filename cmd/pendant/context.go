package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pendant/internal/config"
	"pendant/internal/daemon"
	"pendant/internal/ledger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withLedger opens the ledger for the duration of fn. shared reports that
// pendantd is running and owns crash recovery.
func (c *commandContext) withLedger(fn func(store *ledger.Store, shared bool) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	lock, err := daemon.AcquireLock(cfg.LockPath())
	if errors.Is(err, daemon.ErrLocked) {
		store, err := ledger.OpenShared(cfg)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer store.Close()
		return fn(store, true)
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	return fn(store, false)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
