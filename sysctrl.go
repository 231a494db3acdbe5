package coresim

// ResetCause enumerates reset_cause values (spec §4.G).
type ResetCause uint32

const (
	ResetCausePOR ResetCause = iota
	ResetCauseWatchdog
	ResetCauseSoft
	ResetCauseExternal
)

const sysctrlVersion = 0x0001_0000

// Register offsets, 32-bit registers at 64-bit stride (spec §4.G/§6).
const (
	sysctrlVersionOff        = 0x00
	sysctrlWatchdogCountOff  = 0x08
	sysctrlSystemConfigOff   = 0x10
	sysctrlWatchdogKickOff   = 0x18
	sysctrlSysInterruptOff   = 0x20
	sysctrlResetCauseOff     = 0x28
	sysctrlPowerDomainReqOff = 0x30
	sysctrlPowerDomainAckOff = 0x38
	sysctrlSpinLockOff       = 0x40
	sysctrlChipModeOff       = 0x48
	sysctrlSoftResetOff      = 0x50
	sysctrlMailbox0Off       = 0x58
	sysctrlMailbox1Off       = 0x60
	sysctrlPowerGoodOff      = 0x68

	sysctrlConfigWdogDisableBit = 1 << 8
	sysctrlWatchdogKickBit      = 1 << 7
)

// SysController is the small-variant system controller (spec §4.G): a
// handful of 32-bit registers plus the watchdog.
type SysController struct {
	sys *System

	systemConfig    uint32
	sysInterrupt    uint32
	resetCause      ResetCause
	powerDomainReq  uint32
	powerDomainAck  uint32
	spinLock        bool
	chipMode        uint32
	softReset       uint32
	mailbox0        uint32
	mailbox1        uint32
	powerGood       uint32

	Watchdog *Watchdog
}

// NewSysController constructs a controller bound to sys, wiring the
// watchdog's timeout handler to a cold-reset cascade (spec §4.G
// "Watchdog"; Design Notes §9 on injected handlers).
func NewSysController(sys *System) *SysController {
	sc := &SysController{sys: sys, chipMode: 0, powerDomainAck: 1}
	sc.Watchdog = NewWatchdog(sys.Cfg.WatchdogDivider, func() {
		sys.ColdResetAfterWatchdog()
	})
	sc.Watchdog.SetReload(sys.Cfg.WatchdogReload)
	return sc
}

// coldReset implements the power-on reset line of spec §4.G: "sets
// reset_cause=POR, disables watchdog, seeds version constant, clears
// mailboxes."
func (sc *SysController) coldReset(cause ResetCause) {
	sc.systemConfig = sysctrlConfigWdogDisableBit
	sc.sysInterrupt = 0
	sc.resetCause = cause
	sc.powerDomainReq = 0
	sc.spinLock = false
	sc.softReset = 0
	sc.mailbox0 = 0
	sc.mailbox1 = 0
	sc.Watchdog.SetEnabled(false)
	sc.Watchdog.count = 0
}

func (sc *SysController) read(offset uint64) (uint32, error) {
	switch offset {
	case sysctrlVersionOff:
		return sysctrlVersion, nil
	case sysctrlWatchdogCountOff:
		return sc.Watchdog.reload, nil
	case sysctrlSystemConfigOff:
		return sc.systemConfig, nil
	case sysctrlWatchdogKickOff:
		return 0, nil
	case sysctrlSysInterruptOff:
		return sc.sysInterrupt, nil
	case sysctrlResetCauseOff:
		v := uint32(sc.resetCause)
		sc.resetCause = ResetCausePOR // read-clear; POR is the documented idle/cleared value
		return v, nil
	case sysctrlPowerDomainReqOff:
		return sc.powerDomainReq, nil
	case sysctrlPowerDomainAckOff:
		return sc.powerDomainAck, nil
	case sysctrlSpinLockOff:
		// read-set: a read returning 0 atomically sets the lock; every
		// subsequent read returns 1 until a clearing write (spec §8
		// property 8).
		if sc.spinLock {
			return 1, nil
		}
		sc.spinLock = true
		return 0, nil
	case sysctrlChipModeOff:
		return sc.chipMode, nil
	case sysctrlSoftResetOff:
		return sc.softReset, nil
	case sysctrlMailbox0Off:
		return sc.mailbox0, nil
	case sysctrlMailbox1Off:
		return sc.mailbox1, nil
	case sysctrlPowerGoodOff:
		sc.powerGood++
		return sc.powerGood, nil
	default:
		return 0, NewMemoryFault(FaultUnknownRegister, nil, offset, 4)
	}
}

func (sc *SysController) write(offset uint64, val uint32) error {
	switch offset {
	case sysctrlVersionOff, sysctrlPowerDomainAckOff, sysctrlChipModeOff, sysctrlPowerGoodOff:
		return NewMemoryFault(FaultReadOnly, nil, offset, 4)
	case sysctrlWatchdogCountOff:
		sc.Watchdog.SetReload(val)
	case sysctrlSystemConfigOff:
		sc.systemConfig = val
		sc.Watchdog.SetEnabled(val&sysctrlConfigWdogDisableBit == 0)
	case sysctrlWatchdogKickOff:
		if val&sysctrlWatchdogKickBit != 0 {
			sc.Watchdog.Kick()
		}
	case sysctrlSysInterruptOff:
		sc.sysInterrupt = val
	case sysctrlResetCauseOff:
		return NewMemoryFault(FaultReadOnly, nil, offset, 4)
	case sysctrlPowerDomainReqOff:
		sc.powerDomainReq = val
		sc.powerDomainAck = val // modeled as immediate ack
	case sysctrlSpinLockOff:
		sc.spinLock = val&1 != 0
	case sysctrlSoftResetOff:
		sc.softReset = val
		if val != 0 {
			sc.sys.WarmReset()
			sc.resetCause = ResetCauseSoft
		}
	case sysctrlMailbox0Off:
		sc.mailbox0 = val
	case sysctrlMailbox1Off:
		sc.mailbox1 = val
	default:
		return NewMemoryFault(FaultUnknownRegister, nil, offset, 4)
	}
	return nil
}

// SysControllerRegion adapts a *SysController to the Region interface:
// registers are 32-bit wide at a 64-bit stride (spec §4.G/§8 "access
// with n not in {4,8} faults").
type SysControllerRegion struct{ sc *SysController }

// NewSysControllerRegion wraps sc for mapping into an AddressSpace.
func NewSysControllerRegion(sc *SysController) *SysControllerRegion {
	return &SysControllerRegion{sc: sc}
}

func (r *SysControllerRegion) checkAccess(offset uint64, n int) error {
	if n != 4 && n != 8 {
		return NewMemoryFault(FaultBadSize, nil, offset, n)
	}
	if offset%8 != 0 {
		return NewMemoryFault(FaultMisaligned, nil, offset, n)
	}
	return nil
}

func (r *SysControllerRegion) Read(agent Agent, offset uint64, n int, out []byte) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	v, err := r.sc.read(offset)
	if err != nil {
		return err
	}
	writeUintLE(out, n, uint64(v))
	return nil
}

func (r *SysControllerRegion) Write(agent Agent, offset uint64, n int, in []byte) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	return r.sc.write(offset, uint32(readUintLE(in, n)))
}

func (r *SysControllerRegion) Init(agent Agent, offset uint64, n int, in []byte) error {
	return r.Write(agent, offset, n, in)
}

func (r *SysControllerRegion) DumpData(w DumpWriter, offset uint64, n int) error {
	buf := make([]byte, n)
	if err := r.Read(AgentCLI, offset, n, buf); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}
