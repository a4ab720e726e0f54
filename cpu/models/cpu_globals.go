package models

import (
	"github.com/pkg/errors"

	kernelModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

type Config struct {
	TlbEntries     int    `json:"tlb_entries" toml:"tlb_entries"`
	TlbReplacement string `json:"tlb_replacement" toml:"tlb_replacement"` // "FIFO" o "LRU"
	Quantum        int    `json:"quantum" toml:"quantum"`
	// 0 significa sin límite
	MaxInstructions int    `json:"max_instructions" toml:"max_instructions"`
	DumpPath        string `json:"dump_path" toml:"dump_path"`
}

type TLBEntry struct {
	EnvID      kernelModels.EnvID
	PageNumber uintptr
	Entry      *memoriaModels.PageEntry
	InsertedAt int64 //contador para FIFO
	LastUsed   int64 //contador para LRU
}

type Instruction struct {
	Opcode string
	Args   []string
}

const (
	OpNoop       = "NOOP"
	OpAlloc      = "ALLOC"
	OpWrite      = "WRITE"
	OpRead       = "READ"
	OpFork       = "FORK"
	OpSFork      = "SFORK"
	OpJz         = "JZ"
	OpJnz        = "JNZ"
	OpGoto       = "GOTO"
	OpYield      = "YIELD"
	OpDumpMemory = "DUMP_MEMORY"
	OpExit       = "EXIT"
)

// ReadRecord es el resultado de una instrucción READ.
type ReadRecord struct {
	EnvID kernelModels.EnvID `json:"env_id"`
	VA    uintptr            `json:"va"`
	Value string             `json:"value"`
}

type TLBStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// DEFINICION DE ERRORES
var ErrInvalidInstruction = errors.New("instrucción inválida")
var ErrInvalidAddress = errors.New("dirección inválida")
