package vm

import "sort"

// ---------------------------------------------------------------------------
// Breakpoints
// ---------------------------------------------------------------------------

// SetBreakpoint stops RunUntilBreak before the instruction at offset executes.
func (m *Machine) SetBreakpoint(offset int) {
	m.breakpoints[offset] = true
}

// ClearBreakpoint removes a breakpoint.
func (m *Machine) ClearBreakpoint(offset int) {
	delete(m.breakpoints, offset)
}

// ToggleBreakpoint flips the breakpoint at offset and reports whether it is now set.
func (m *Machine) ToggleBreakpoint(offset int) bool {
	if m.breakpoints[offset] {
		delete(m.breakpoints, offset)
		return false
	}
	m.breakpoints[offset] = true
	return true
}

// HasBreakpoint reports whether offset has a breakpoint.
func (m *Machine) HasBreakpoint(offset int) bool {
	return m.breakpoints[offset]
}

// Breakpoints returns the breakpoint offsets in ascending order.
func (m *Machine) Breakpoints() []int {
	offsets := make([]int, 0, len(m.breakpoints))
	for off := range m.breakpoints {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	return offsets
}

// RunUntilBreak executes at least one instruction, then continues until the
// instruction pointer reaches a breakpoint, the machine stops, or limit
// instructions have run. A limit of 0 means no limit. It returns the result
// of the last step.
func (m *Machine) RunUntilBreak(limit uint64) StepResult {
	start := m.steps
	res := m.Step()
	for m.state == Running && !m.breakpoints[m.ip] {
		if limit > 0 && m.steps-start >= limit {
			break
		}
		res = m.Step()
	}
	return res
}
