// Package regalloc assigns physical registers to virtual registers by
// linear scan over live intervals, with separate integer and floating-point
// register files, argument-register constraints, and spilling with
// load/store bracketing.
package regalloc

import (
	"sort"

	"github.com/jainl28patel/xcc/pkg/ir"
)

// IntervalState tracks how an interval ends up being materialized.
type IntervalState int

const (
	LiNormal IntervalState = iota
	LiConst
	LiSpill
)

// LiveInterval is the range of instruction indices over which a vreg's
// value must be preserved, plus the physical registers that argument
// passing or call clobbers occupy somewhere inside the range.
type LiveInterval struct {
	Virt     int
	Start    int
	End      int
	Phys     int
	State    IntervalState
	Occupied uint64 // physical registers unusable for this interval
}

// Config supplies the target's register-file shape. ParamMapping maps a
// logical integer argument index to its physical register index, or -1 for
// stack-passed arguments. The low TempCount registers are the
// caller-saved/scratch range.
type Config struct {
	ParamMapping []int
	PhysMax      int
	TempCount    int
	FPhysMax     int
	FTempCount   int
}

// RegAlloc owns the function's virtual registers and drives allocation.
type RegAlloc struct {
	cfg   Config
	vregs []*ir.VReg

	Intervals       []*LiveInterval
	SortedIntervals []*LiveInterval
	UsedRegBits     uint64
	UsedFRegBits    uint64
}

// New creates a register allocator for one function.
func New(cfg Config) *RegAlloc {
	return &RegAlloc{cfg: cfg}
}

// Spawn creates a fresh virtual register.
func (ra *RegAlloc) Spawn(vt ir.VRegType, flag ir.VRegFlag) *ir.VReg {
	v := &ir.VReg{
		ID:         len(ra.vregs),
		VT:         vt,
		Flag:       flag,
		ParamIndex: -1,
		Phys:       -1,
	}
	ra.vregs = append(ra.vregs, v)
	return v
}

// VRegs returns every vreg spawned so far.
func (ra *RegAlloc) VRegs() []*ir.VReg {
	return ra.vregs
}

// checkLiveInterval rebuilds the interval table from instruction order.
// Block in-sets force an interval to cover the block's first index and
// out-sets its last, so values stay live across jumps.
func (ra *RegAlloc) checkLiveInterval(con *ir.BBContainer, intervals []*LiveInterval) {
	for i, li := range intervals {
		li.Occupied = 0
		li.State = LiNormal
		li.Start, li.End = -1, -1
		li.Virt = i
		li.Phys = -1
	}

	setInout := func(regs []*ir.VReg, nip int) {
		for _, v := range regs {
			li := intervals[v.ID]
			if v.Flag&ir.VRFParam != 0 {
				// Register parameters are live from function entry; keep
				// the interval start pinned there.
			} else if li.Start < 0 || li.Start > nip {
				li.Start = nip
			}
			if li.End < nip {
				li.End = nip
			}
		}
	}

	nip := 0
	for _, bb := range con.BBs {
		setInout(bb.InRegs, nip)
		for _, inst := range bb.Irs {
			for _, v := range [3]*ir.VReg{inst.Dst, inst.Opr1, inst.Opr2} {
				if v == nil {
					continue
				}
				li := intervals[v.ID]
				if li.Start < 0 && v.Flag&ir.VRFParam == 0 {
					li.Start = nip
				}
				if li.End < nip {
					li.End = nip
				}
			}
			nip++
		}
		setInout(bb.OutRegs, nip)
	}
}

// occupyRegs marks the given physical sets occupied for every active
// interval, picking the integer or float set by the vreg's kind.
func (ra *RegAlloc) occupyRegs(actives []*LiveInterval, ioccupy, foccupy uint64) {
	for _, li := range actives {
		if ra.vregs[li.Virt].VT.Flonum {
			li.Occupied |= foccupy
		} else {
			li.Occupied |= ioccupy
		}
	}
}

// detectLiveIntervalFlags walks the instructions again, marking argument
// registers occupied for intervals live at each pusharg and caller-saved
// registers occupied for intervals spanning each call.
func (ra *RegAlloc) detectLiveIntervalFlags(con *ir.BBContainer, sorted []*LiveInterval) {
	var inactives, actives []*LiveInterval
	for _, li := range sorted {
		if li.Start < 0 {
			actives = append(actives, li)
		} else {
			inactives = append(inactives, li)
		}
	}

	nip := 0
	var iargset, fargset uint64
	for _, bb := range con.BBs {
		for _, inst := range bb.Irs {
			if inst.Op == ir.OpPushArg {
				if inst.Opr1.VT.Flonum {
					// Floating argument registers are used in index order;
					// no mapping required. Stack-passed arguments occupy
					// no register.
					if inst.Value < int64(ra.cfg.FPhysMax) {
						fargset |= 1 << uint(inst.Value)
					}
				} else if inst.Value < int64(len(ra.cfg.ParamMapping)) {
					if n := ra.cfg.ParamMapping[inst.Value]; n >= 0 {
						iargset |= 1 << uint(n)
					}
				}
			}
			if iargset != 0 || fargset != 0 {
				ra.occupyRegs(actives, iargset, fargset)
			}

			// Deactivate intervals that end at this ip.
			for k := 0; k < len(actives); k++ {
				if actives[k].End <= nip {
					actives = append(actives[:k], actives[k+1:]...)
					k--
				}
			}

			// A call clobbers the caller-saved range for intervals that
			// span it.
			if inst.Op == ir.OpCall {
				ibroken := uint64(1)<<uint(ra.cfg.TempCount) - 1
				fbroken := uint64(1)<<uint(ra.cfg.FTempCount) - 1
				ra.occupyRegs(actives, ibroken, fbroken)
				iargset, fargset = 0, 0
			}

			// Activate intervals after their usage has been checked.
			for len(inactives) > 0 && inactives[0].Start <= nip {
				actives = append(actives, inactives[0])
				inactives = inactives[1:]
			}
			nip++
		}
	}
}

// physRegSet is the per-file scan state.
type physRegSet struct {
	active    []*LiveInterval // sorted by End ascending
	physMax   int
	physTemp  int
	usingBits uint64
	usedBits  uint64
}

func (p *physRegSet) insertActive(li *LiveInterval) {
	i := sort.Search(len(p.active), func(i int) bool { return li.End < p.active[i].End })
	p.active = append(p.active, nil)
	copy(p.active[i+1:], p.active[i:])
	p.active[i] = li
}

func (p *physRegSet) expireOldIntervals(start int) {
	j := 0
	for ; j < len(p.active); j++ {
		li := p.active[j]
		if li.End > start {
			break
		}
		p.usingBits &^= 1 << uint(li.Phys)
	}
	p.active = p.active[j:]
}

// splitAtInterval spills whichever of the active set and the current
// interval ends last. The latest-ending active interval is at the back of
// the sorted active list.
func (p *physRegSet) splitAtInterval(li *LiveInterval) {
	spill := p.active[len(p.active)-1]
	if spill.End > li.End {
		li.Phys = spill.Phys
		spill.Phys = p.physMax
		spill.State = LiSpill
		p.active = p.active[:len(p.active)-1]
		p.insertActive(li)
	} else {
		li.Phys = p.physMax
		li.State = LiSpill
	}
}

// linearScan walks the sorted intervals assigning physical registers,
// spilling the latest-ending conflict under pressure.
func (ra *RegAlloc) linearScan(sorted []*LiveInterval) {
	iregset := physRegSet{physMax: ra.cfg.PhysMax, physTemp: ra.cfg.TempCount}
	fregset := physRegSet{physMax: ra.cfg.FPhysMax, physTemp: ra.cfg.FTempCount}

	for _, li := range sorted {
		if li.State != LiNormal {
			continue
		}
		iregset.expireOldIntervals(li.Start)
		fregset.expireOldIntervals(li.Start)

		vreg := ra.vregs[li.Virt]
		prsp := &iregset
		if vreg.VT.Flonum {
			prsp = &fregset
		}

		startIndex := 0
		regno := -1
		occupied := prsp.usingBits | li.Occupied
		if ip := vreg.ParamIndex; ip >= 0 {
			if !vreg.VT.Flonum {
				ip = ra.cfg.ParamMapping[ip]
			}
			if ip >= 0 && occupied&(1<<uint(ip)) == 0 {
				regno = ip
			} else {
				// The ABI register is taken; fall back past the scratch
				// range reserved for spill fix-ups.
				startIndex = prsp.physTemp
			}
		}
		if regno < 0 {
			for j := startIndex; j < prsp.physMax; j++ {
				if occupied&(1<<uint(j)) == 0 {
					regno = j
					break
				}
			}
		}
		if regno >= 0 {
			li.Phys = regno
			prsp.usingBits |= 1 << uint(regno)
			prsp.insertActive(li)
		} else {
			prsp.splitAtInterval(li)
		}
		prsp.usedBits |= prsp.usingBits
	}
	ra.UsedRegBits = iregset.usedBits
	ra.UsedFRegBits = fregset.usedBits
}

// insertTmpReg reroutes one spilled operand or destination of the
// instruction at index j through a fresh no-spill temporary. Returns the
// index of the rewritten instruction, or of the store inserted after it
// when the destination was spilled.
func (ra *RegAlloc) insertTmpReg(irs *[]*ir.Instr, j int, spilled *ir.VReg) int {
	tmp := ra.Spawn(spilled.VT, ir.VRFNoSpill)
	inst := (*irs)[j]
	if inst.Opr1 == spilled || inst.Opr2 == spilled {
		load := &ir.Instr{Op: ir.OpLoadSpilled, Dst: tmp, Opr1: spilled}
		*irs = append(*irs, nil)
		copy((*irs)[j+1:], (*irs)[j:])
		(*irs)[j] = load
		j++
		if inst.Opr1 == spilled {
			inst.Opr1 = tmp
		}
		if inst.Opr2 == spilled {
			inst.Opr2 = tmp
		}
	}
	if inst.Dst == spilled {
		store := &ir.Instr{Op: ir.OpStoreSpilled, Dst: spilled, Opr1: tmp}
		j++
		*irs = append(*irs, nil)
		copy((*irs)[j+1:], (*irs)[j:])
		(*irs)[j] = store
		inst.Dst = tmp
	}
	return j
}

// operand accessibility per opcode: bit 0 = opr1, bit 1 = opr2, bit 2 = dst.
func SpillCheckFlag(op ir.Op) int {
	switch op {
	case ir.OpSubSP, ir.OpCast:
		return 5
	case ir.OpBofs, ir.OpIofs, ir.OpSofs:
		return 4
	case ir.OpLoadSpilled, ir.OpStoreSpilled:
		return 0
	default:
		return 7
	}
}

// insertLoadStoreSpilledIRs brackets every occurrence of a spilled vreg
// with load/store-spilled through a temporary. Returns the number of
// insertions performed.
func (ra *RegAlloc) insertLoadStoreSpilledIRs(con *ir.BBContainer) int {
	inserted := 0
	for _, bb := range con.BBs {
		for j := 0; j < len(bb.Irs); j++ {
			inst := bb.Irs[j]
			flag := SpillCheckFlag(inst.Op)
			if flag == 0 {
				continue
			}
			if inst.Opr1 != nil && flag&1 != 0 &&
				!inst.Opr1.IsConst() && inst.Opr1.Flag&ir.VRFSpilled != 0 {
				j = ra.insertTmpReg(&bb.Irs, j, inst.Opr1)
				inserted++
			}
			if inst.Opr2 != nil && flag&2 != 0 &&
				!inst.Opr2.IsConst() && inst.Opr2.Flag&ir.VRFSpilled != 0 {
				j = ra.insertTmpReg(&bb.Irs, j, inst.Opr2)
				inserted++
			}
			if inst.Dst != nil && flag&4 != 0 &&
				!inst.Dst.IsConst() && inst.Dst.Flag&ir.VRFSpilled != 0 {
				j = ra.insertTmpReg(&bb.Irs, j, inst.Dst)
				inserted++
			}
		}
	}
	return inserted
}

// Alloc runs allocation to a fixed point: build intervals, scan, spill,
// bracket spilled uses, and repeat until no insertions remain. The spill
// callback assigns each newly-spilled vreg its frame slot.
func (ra *RegAlloc) Alloc(con *ir.BBContainer, spill func(*ir.VReg)) {
	for {
		con.Analyze()

		intervals := make([]*LiveInterval, len(ra.vregs))
		for i := range intervals {
			intervals[i] = &LiveInterval{}
		}
		ra.checkLiveInterval(con, intervals)

		for i, li := range intervals {
			vreg := ra.vregs[i]
			if vreg.Flag&ir.VRFConst != 0 {
				li.State = LiConst
				continue
			}
			if vreg.Flag&ir.VRFSpilled != 0 {
				li.State = LiSpill
				li.Phys = vreg.Phys
			}
		}

		sorted := make([]*LiveInterval, len(intervals))
		copy(sorted, intervals)
		sort.SliceStable(sorted, func(a, b int) bool {
			if sorted[a].Start != sorted[b].Start {
				return sorted[a].Start < sorted[b].Start
			}
			return sorted[a].End > sorted[b].End
		})

		ra.detectLiveIntervalFlags(con, sorted)
		ra.linearScan(sorted)

		for i, li := range intervals {
			vreg := ra.vregs[i]
			vreg.Phys = li.Phys
			if li.State == LiSpill && vreg.Flag&ir.VRFSpilled == 0 {
				vreg.Flag |= ir.VRFSpilled
				spill(vreg)
			}
		}

		ra.Intervals = intervals
		ra.SortedIntervals = sorted

		if ra.insertLoadStoreSpilledIRs(con) <= 0 {
			break
		}
	}
}
