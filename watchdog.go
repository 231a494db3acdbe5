package coresim

// Watchdog is a divider-gated countdown timer (spec §4.G). Its timeout
// handler is injected at construction rather than stored as a global
// callback (Design Notes §9: "avoid a stored callback pointer to a
// global; pass the handler explicitly").
type Watchdog struct {
	enabled    bool
	divider    uint32
	reload     uint32
	count      uint32
	tickAccum  uint32
	expired    bool
	onTimeout  func()
}

// NewWatchdog constructs a disabled watchdog with the given divider
// and the chip-supplied timeout handler.
func NewWatchdog(divider uint32, onTimeout func()) *Watchdog {
	if divider == 0 {
		divider = 1
	}
	return &Watchdog{divider: divider, onTimeout: onTimeout}
}

// SetEnabled binds to system_config bit 8 (wdog_disable), inverted.
func (w *Watchdog) SetEnabled(enabled bool) {
	w.enabled = enabled
	w.expired = false
}

// SetReload sets watchdog_count, the value a kick reloads from.
func (w *Watchdog) SetReload(v uint32) { w.reload = v }

// Kick reloads the counter from the configured reload value. Calling
// Kick twice in a row is equivalent to calling it once (spec §8
// round-trip property): both simply set count to reload.
func (w *Watchdog) Kick() {
	w.count = w.reload
	w.tickAccum = 0
	w.expired = false
}

// Tick is called once per emulated cycle; every `divider` ticks the
// counter decrements by one, and reaching zero fires onTimeout exactly
// once per expiry (re-armed only by the next Kick or SetEnabled).
func (w *Watchdog) Tick() {
	if !w.enabled {
		return
	}
	w.tickAccum++
	if w.tickAccum < w.divider {
		return
	}
	w.tickAccum = 0
	if w.count > 0 {
		w.count--
	}
	if w.count == 0 && !w.expired {
		w.expired = true
		if w.onTimeout != nil {
			w.onTimeout()
		}
	}
}

// Count exposes the live countdown value for diagnostics/tests.
func (w *Watchdog) Count() uint32 { return w.count }
