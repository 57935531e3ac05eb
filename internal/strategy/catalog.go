package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Loader produces the strategy set for the catalog.
type Loader interface {
	Load(ctx context.Context) ([]Strategy, error)
}

// Catalog is the registration table for strategies, keyed by
// case-insensitive name. A registration only displaces an existing entry
// when its version is newer.
type Catalog struct {
	loader Loader
	logger *zap.Logger

	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewCatalog(loader Loader, logger *zap.Logger) *Catalog {
	return &Catalog{
		loader:     loader,
		logger:     logger,
		strategies: make(map[string]Strategy),
	}
}

// Register adds s, replacing an existing entry of the same name only when
// s's version is strictly newer. Reports whether s was installed.
func (c *Catalog) Register(s Strategy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerLocked(s)
}

func (c *Catalog) registerLocked(s Strategy) bool {
	key := strings.ToLower(s.Name())
	if existing, ok := c.strategies[key]; ok && existing.Version() >= s.Version() {
		c.logger.Debug("skipped stale strategy registration",
			zap.String("strategy", s.Name()),
			zap.Int("offered_version", s.Version()),
			zap.Int("installed_version", existing.Version()))
		return false
	}
	c.strategies[key] = s
	return true
}

// Get resolves a strategy by name.
func (c *Catalog) Get(name string) (Strategy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.strategies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("strategy %q is not registered", name)
	}
	return s, nil
}

// List returns the registered strategies sorted by name.
func (c *Catalog) List() []Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Strategy, 0, len(c.strategies))
	for _, s := range c.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Reload replaces the catalog's contents with the loader's current set.
func (c *Catalog) Reload(ctx context.Context) error {
	if c.loader == nil {
		return nil
	}

	loaded, err := c.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.strategies = make(map[string]Strategy, len(loaded))
	for _, s := range loaded {
		c.registerLocked(s)
	}

	c.logger.Info("loaded trading strategies", zap.Int("count", len(c.strategies)))
	return nil
}

// StaticLoader serves a fixed strategy set.
type StaticLoader struct {
	strategies []Strategy
}

func NewStaticLoader(strategies ...Strategy) *StaticLoader {
	return &StaticLoader{strategies: strategies}
}

func (l *StaticLoader) Load(context.Context) ([]Strategy, error) {
	return l.strategies, nil
}

// BuiltinStrategies is the default strategy set.
func BuiltinStrategies() []Strategy {
	return []Strategy{
		RSIBasicStrategy{},
		BBReversalStrategy{},
	}
}
