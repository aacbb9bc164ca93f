package asmgen

import "github.com/jainl28patel/xcc/pkg/regalloc"

// Allocatable integer registers, caller-saved range first. The low
// TempCount registers are clobbered by calls; the scratch pair r10/r11 also
// serves spill fix-ups. rax, rdx's div role, rsp and rbp are handled by the
// emitter directly.
var intRegNames = [][4]string{
	// {64, 32, 16, 8}
	{"r10", "r10d", "r10w", "r10b"},
	{"r11", "r11d", "r11w", "r11b"},
	{"rdi", "edi", "di", "dil"},
	{"rsi", "esi", "si", "sil"},
	{"rdx", "edx", "dx", "dl"},
	{"rcx", "ecx", "cx", "cl"},
	{"r8", "r8d", "r8w", "r8b"},
	{"r9", "r9d", "r9w", "r9b"},
	{"rbx", "ebx", "bx", "bl"},
	{"r12", "r12d", "r12w", "r12b"},
	{"r13", "r13d", "r13w", "r13b"},
	{"r14", "r14d", "r14w", "r14b"},
	{"r15", "r15d", "r15w", "r15b"},
}

const (
	numIntRegs    = 13
	numIntTemps   = 8 // r10..r9 above are caller-saved
	numFloatRegs  = 16
	numFloatTemps = 16 // every xmm register is caller-saved
	numIntArgRegs = 6
	physRdx       = 4 // index of rdx in intRegNames
)

// intArgMapping maps a logical integer argument index to its physical
// register index: rdi, rsi, rdx, rcx, r8, r9.
var intArgMapping = []int{2, 3, 4, 5, 6, 7}

// calleeSavedMask covers rbx and r12-r15.
const calleeSavedMask = ((1 << numIntRegs) - 1) &^ ((1 << numIntTemps) - 1)

// RegConfig returns the register-file description handed to the allocator.
func RegConfig() regalloc.Config {
	return regalloc.Config{
		ParamMapping: intArgMapping,
		PhysMax:      numIntRegs,
		TempCount:    numIntTemps,
		FPhysMax:     numFloatRegs,
		FTempCount:   numFloatTemps,
	}
}

// regName returns the AT&T name of physical register phys at the given
// byte size.
func regName(phys int, size int64) string {
	col := 0
	switch size {
	case 4:
		col = 1
	case 2:
		col = 2
	case 1:
		col = 3
	}
	return "%" + intRegNames[phys][col]
}

func xmmName(phys int) string {
	return "%xmm" + itoa(int64(phys))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
