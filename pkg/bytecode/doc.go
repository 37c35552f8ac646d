// Package bytecode defines the binary instruction encoding shared by the
// assembler and the virtual machine.
//
// An instruction is a one-byte opcode followed by zero, one or two operand
// fields whose widths are fixed per opcode:
//
//   - reg: 1 byte register index, R0..R15
//   - imm8: 1 byte unsigned immediate
//   - imm64: 8 byte signed immediate, little-endian
//   - addr: 4 byte code address, little-endian
//   - mem: 4 byte memory cell index, little-endian
//
// A program is a flat byte sequence of instructions with no header. Because
// every width is known from the opcode alone, the stream can be decoded
// linearly from any instruction boundary.
//
// # Components
//
//   - Opcodes: a closed table indexed by opcode byte. Bytes outside the table
//     decode as ErrInvalidOpcode.
//
//   - Instruction: an opcode plus its decoded operands. Encode and Decode are
//     exact inverses for well-formed instructions.
//
//   - Disassemble / Listing: linear decoding of a whole program, used by the
//     CLI, the debugger and the network service.
package bytecode
