package coresim

// L0Status is the per-neighborhood AND/OR fold over its selected
// harts' state (spec §4.D, §8 property 2-3): the ten status bits
// hastatus0/1 expose — any/all halted, any/all running, any/all
// resumeack, any/all havereset, any unavailable, any selected. A
// neighborhood with no selected hart contributes every "all*" bit as
// false — an empty selection asserts nothing, it does not vacuously
// satisfy "all halted" (the "all* bits cleared when no
// neighborhood/shire has any selected hart" subtlety named in spec §8
// property 3). There is no "all unavailable" bit: spec §4.D only
// defines "any".
type L0Status struct {
	AnySelected bool

	AnyHalted bool
	AllHalted bool

	AnyRunning bool
	AllRunning bool

	AnyResumeAck bool
	AllResumeAck bool

	AnyHaveReset bool
	AllHaveReset bool

	AnyUnavailable bool
}

// ComputeL0 folds one neighborhood's selected harts. Never cached —
// recomputed on every call (spec §4.D, Design Notes §9: "materialize
// only when read; do not cache it").
func ComputeL0(sys *System, shireIdx, neighIdx int) L0Status {
	harts := sys.HartsInNeighborhood(shireIdx, neighIdx)
	var st L0Status
	allHalted, allRunning, allResumeAck, allHaveReset := true, true, true, true
	for _, h := range harts {
		if h == nil || !h.selected {
			continue
		}
		st.AnySelected = true

		halted := h.state == StateHalted
		running := h.state == StateRunning
		st.AnyHalted = st.AnyHalted || halted
		allHalted = allHalted && halted
		st.AnyRunning = st.AnyRunning || running
		allRunning = allRunning && running

		st.AnyResumeAck = st.AnyResumeAck || h.flags.resumeack
		allResumeAck = allResumeAck && h.flags.resumeack
		st.AnyHaveReset = st.AnyHaveReset || h.flags.havereset
		allHaveReset = allHaveReset && h.flags.havereset

		if h.state == StateUnavailable {
			st.AnyUnavailable = true
		}
	}
	if st.AnySelected {
		st.AllHalted = allHalted
		st.AllRunning = allRunning
		st.AllResumeAck = allResumeAck
		st.AllHaveReset = allHaveReset
	}
	return st
}

// anyAllAccum is a running any/all accumulation shared by ComputeL1/
// ComputeL2's fold over their children; the all* fields start true and
// are narrowed by each selected child, matching the "all* cleared
// unless every selected child agrees" rule every level in the tree
// follows.
type anyAllAccum struct {
	anySelected bool

	anyHalted, allHalted       bool
	anyRunning, allRunning     bool
	anyResumeAck, allResumeAck bool
	anyHaveReset, allHaveReset bool
	anyUnavailable             bool
}

func newAnyAllAccum() anyAllAccum {
	return anyAllAccum{allHalted: true, allRunning: true, allResumeAck: true, allHaveReset: true}
}

func (a *anyAllAccum) merge(anySelected, anyHalted, allHalted, anyRunning, allRunning, anyResumeAck, allResumeAck, anyHaveReset, allHaveReset, anyUnavailable bool) {
	if !anySelected {
		return
	}
	a.anySelected = true
	a.anyHalted = a.anyHalted || anyHalted
	a.allHalted = a.allHalted && allHalted
	a.anyRunning = a.anyRunning || anyRunning
	a.allRunning = a.allRunning && allRunning
	a.anyResumeAck = a.anyResumeAck || anyResumeAck
	a.allResumeAck = a.allResumeAck && allResumeAck
	a.anyHaveReset = a.anyHaveReset || anyHaveReset
	a.allHaveReset = a.allHaveReset && allHaveReset
	a.anyUnavailable = a.anyUnavailable || anyUnavailable
}

// L1Status is the per-shire fold over its neighborhoods' L0 values,
// plus the two pair-packed anyhalted bits the L1 hastatus-adjacent
// register surfaces: halted-in-left-pair / halted-in-right-pair, where
// "pair" splits the shire's neighborhoods into their first and second
// half (spec §4.D).
type L1Status struct {
	AnySelected bool

	AnyHalted bool
	AllHalted bool

	AnyRunning bool
	AllRunning bool

	AnyResumeAck bool
	AllResumeAck bool

	AnyHaveReset bool
	AllHaveReset bool

	AnyUnavailable bool

	// AnyHaltedPair[0] is "any selected+halted hart in the shire's
	// left-half neighborhoods", [1] is the right half.
	AnyHaltedPair [2]bool
}

// ComputeL1 folds every neighborhood in one shire.
func ComputeL1(sys *System, shireIdx int) L1Status {
	acc := newAnyAllAccum()
	var st L1Status
	n := sys.Topo.NeighborhoodsPerShire
	half := (n + 1) / 2
	for i := 0; i < n; i++ {
		l0 := ComputeL0(sys, shireIdx, i)
		acc.merge(l0.AnySelected, l0.AnyHalted, l0.AllHalted, l0.AnyRunning, l0.AllRunning,
			l0.AnyResumeAck, l0.AllResumeAck, l0.AnyHaveReset, l0.AllHaveReset, l0.AnyUnavailable)
		if l0.AnySelected && l0.AnyHalted {
			if i < half {
				st.AnyHaltedPair[0] = true
			} else {
				st.AnyHaltedPair[1] = true
			}
		}
	}
	st.AnySelected = acc.anySelected
	st.AnyHalted, st.AnyRunning, st.AnyResumeAck, st.AnyHaveReset, st.AnyUnavailable =
		acc.anyHalted, acc.anyRunning, acc.anyResumeAck, acc.anyHaveReset, acc.anyUnavailable
	if acc.anySelected {
		st.AllHalted, st.AllRunning, st.AllResumeAck, st.AllHaveReset =
			acc.allHalted, acc.allRunning, acc.allResumeAck, acc.allHaveReset
	}
	return st
}

// L2Status is the chip-wide fold over every shire's L1 value, plus the
// three group-packed anyhalted bits the L2 register surfaces:
// halted-in-each-16-shire group (spec §4.D).
type L2Status struct {
	AnySelected bool

	AnyHalted bool
	AllHalted bool

	AnyRunning bool
	AllRunning bool

	AnyResumeAck bool
	AllResumeAck bool

	AnyHaveReset bool
	AllHaveReset bool

	AnyUnavailable bool

	// AnyHaltedGroup[g] is "any selected+halted hart in shires
	// [16g, 16g+16)".
	AnyHaltedGroup [3]bool
}

const shiresPerL2Group = 16

// ComputeL2 folds every shire in the chip.
func ComputeL2(sys *System) L2Status {
	acc := newAnyAllAccum()
	var st L2Status
	for s := 0; s < sys.Topo.Shires; s++ {
		l1 := ComputeL1(sys, s)
		acc.merge(l1.AnySelected, l1.AnyHalted, l1.AllHalted, l1.AnyRunning, l1.AllRunning,
			l1.AnyResumeAck, l1.AllResumeAck, l1.AnyHaveReset, l1.AllHaveReset, l1.AnyUnavailable)
		if l1.AnySelected && l1.AnyHalted {
			group := s / shiresPerL2Group
			if group < len(st.AnyHaltedGroup) {
				st.AnyHaltedGroup[group] = true
			}
		}
	}
	st.AnySelected = acc.anySelected
	st.AnyHalted, st.AnyRunning, st.AnyResumeAck, st.AnyHaveReset, st.AnyUnavailable =
		acc.anyHalted, acc.anyRunning, acc.anyResumeAck, acc.anyHaveReset, acc.anyUnavailable
	if acc.anySelected {
		st.AllHalted, st.AllRunning, st.AllResumeAck, st.AllHaveReset =
			acc.allHalted, acc.allRunning, acc.allResumeAck, acc.allHaveReset
	}
	return st
}
