//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// CopperEngine uses unsafe.Pointer uint32 stores for framebuffer writes
// and memory bus access, which assume little-endian byte order.
var _ = "CopperEngine requires a little-endian architecture" + 1
