// Package vm implements the artvm register/stack machine.
//
// This package contains:
//   - Machine state: instruction pointer, 16 registers, comparison flags,
//     a bounded data stack and word-addressed memory
//   - The decode-execute loop (Step, Run)
//   - Fault classification
//   - Breakpoints and snapshots for interactive stepping
package vm
