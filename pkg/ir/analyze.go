package ir

// Successors returns the blocks control can reach from the block at index
// i: explicit jump targets plus fallthrough when the block does not end in
// an unconditional jump.
func (con *BBContainer) Successors(i int) []*BB {
	bb := con.BBs[i]
	var succ []*BB
	fallthru := true
	for _, inst := range bb.Irs {
		switch inst.Op {
		case OpJmp:
			succ = append(succ, inst.BB)
			if inst == bb.Irs[len(bb.Irs)-1] && inst.Cond.Kind() == CondAny {
				fallthru = false
			}
		case OpTableJmp:
			succ = append(succ, inst.Tables...)
			if inst == bb.Irs[len(bb.Irs)-1] {
				fallthru = false
			}
		case OpResult:
			// Result feeding the epilogue ends the function when it is the
			// block's last instruction and the block jumps nowhere; control
			// still falls through to the exit block in layout order.
		}
	}
	if fallthru && i+1 < len(con.BBs) {
		succ = append(succ, con.BBs[i+1])
	}
	return succ
}

// Analyze computes per-block live-in and live-out vreg sets with the usual
// backward dataflow iteration. Constant vregs are never live.
func (con *BBContainer) Analyze() {
	n := len(con.BBs)
	use := make([]map[*VReg]bool, n)
	def := make([]map[*VReg]bool, n)
	in := make([]map[*VReg]bool, n)
	out := make([]map[*VReg]bool, n)
	index := make(map[*BB]int, n)

	for i, bb := range con.BBs {
		index[bb] = i
		use[i] = make(map[*VReg]bool)
		def[i] = make(map[*VReg]bool)
		in[i] = make(map[*VReg]bool)
		out[i] = make(map[*VReg]bool)
		for _, inst := range bb.Irs {
			for _, opr := range [2]*VReg{inst.Opr1, inst.Opr2} {
				if opr != nil && !opr.IsConst() && !def[i][opr] {
					use[i][opr] = true
				}
			}
			if inst.Dst != nil && !inst.Dst.IsConst() {
				def[i][inst.Dst] = true
			}
		}
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			for _, succ := range con.Successors(i) {
				for v := range in[index[succ]] {
					if !out[i][v] {
						out[i][v] = true
						changed = true
					}
				}
			}
			for v := range use[i] {
				if !in[i][v] {
					in[i][v] = true
					changed = true
				}
			}
			for v := range out[i] {
				if !def[i][v] && !in[i][v] {
					in[i][v] = true
					changed = true
				}
			}
		}
	}

	for i, bb := range con.BBs {
		bb.InRegs = sortedRegs(in[i])
		bb.OutRegs = sortedRegs(out[i])
	}
}

func sortedRegs(set map[*VReg]bool) []*VReg {
	out := make([]*VReg, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
