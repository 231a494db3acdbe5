package coresim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the chip topology and boot configuration loaded from a
// YAML file by the CLI driver (or constructed directly by tests /
// library callers). It is the configuration layer the distilled spec
// leaves implicit.
type Config struct {
	Shires                 int              `yaml:"shires"`
	NeighborhoodsPerShire  int              `yaml:"neighborhoods_per_shire"`
	MinionsPerNeighborhood int              `yaml:"minions_per_neighborhood"`
	PLICSources            int              `yaml:"plic_sources"`
	PLICTargets             int              `yaml:"plic_targets"`
	ScratchpadSets          int              `yaml:"scratchpad_sets"`
	ScratchpadWays          int              `yaml:"scratchpad_ways"`
	ScratchpadBase          uint64           `yaml:"scratchpad_base"`
	ScratchpadSize          uint64           `yaml:"scratchpad_size"`
	ServiceProcessor        bool             `yaml:"service_processor"`
	BootPC                  map[int]uint64   `yaml:"boot_pc"` // keyed by shire id
	WatchdogDivider         uint32           `yaml:"watchdog_divider"`
	WatchdogReload          uint32           `yaml:"watchdog_reload"`
	MaxCycles               uint64           `yaml:"max_cycles"`
	PromoteToFatal          []string         `yaml:"promote_to_fatal"`
}

// DefaultConfig returns a Config matching DefaultTopology with a
// disabled watchdog and no promoted categories.
func DefaultConfig() Config {
	t := DefaultTopology()
	return Config{
		Shires:                 t.Shires,
		NeighborhoodsPerShire:  t.NeighborhoodsPerShire,
		MinionsPerNeighborhood: t.MinionsPerNeighborhood,
		PLICSources:            t.PLICSources,
		PLICTargets:            t.PLICTargets,
		ScratchpadSets:         t.ScratchpadSets,
		ScratchpadWays:         t.ScratchpadWays,
		ScratchpadBase:         0x1000_0000,
		ScratchpadSize:         0x0010_0000,
		BootPC:                 map[int]uint64{},
		WatchdogDivider:        1,
		WatchdogReload:         0,
	}
}

// LoadConfig reads and parses a YAML config file, applying
// DefaultConfig for any zero-valued topology field left unset.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("coresim: read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("coresim: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects topology shapes that would make ESR address
// decoding ambiguous: the shire-id field is 5 bits (spec §6), so
// shire count must fit, and the sentinel "all ones" value must remain
// out of the valid shire-id range.
func (c Config) Validate() error {
	const maxShires = 31 // 5-bit field, all-ones (31) reserved as "local shire" sentinel
	if c.Shires < 1 || c.Shires > maxShires {
		return fmt.Errorf("coresim: shires must be in [1,%d], got %d", maxShires, c.Shires)
	}
	if c.NeighborhoodsPerShire < 1 {
		return fmt.Errorf("coresim: neighborhoods_per_shire must be >= 1")
	}
	if c.MinionsPerNeighborhood < 1 {
		return fmt.Errorf("coresim: minions_per_neighborhood must be >= 1")
	}
	if c.PLICSources < 1 || c.PLICTargets < 1 {
		return fmt.Errorf("coresim: plic_sources/plic_targets must be >= 1")
	}
	if c.ScratchpadSets < 1 || c.ScratchpadWays < 2 {
		return fmt.Errorf("coresim: scratchpad_ways must be >= 2 (lock invariant needs ways-1 >= 1)")
	}
	return nil
}

// Topology extracts the Topology subset of Config.
func (c Config) Topology() Topology {
	return Topology{
		Shires:                 c.Shires,
		NeighborhoodsPerShire:  c.NeighborhoodsPerShire,
		MinionsPerNeighborhood: c.MinionsPerNeighborhood,
		CacheBanksPerShire:     4,
		PLICSources:            c.PLICSources,
		PLICTargets:            c.PLICTargets,
		ScratchpadSets:         c.ScratchpadSets,
		ScratchpadWays:         c.ScratchpadWays,
	}
}

// PromotionSet converts PromoteToFatal into the map logger expects.
func (c Config) PromotionSet() map[WarnCategory]bool {
	m := make(map[WarnCategory]bool, len(c.PromoteToFatal))
	for _, s := range c.PromoteToFatal {
		m[WarnCategory(s)] = true
	}
	return m
}
