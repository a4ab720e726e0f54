package models

import (
	"bytes"
	"encoding/binary"

	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

// EnvID identifica un proceso. 0 siempre significa "el proceso actual".
type EnvID int32

// ENVX devuelve el índice del proceso dentro de la tabla.
func ENVX(id EnvID) int {
	return int(id) & (NEnv - 1)
}

type EnvStatus int

const (
	EnvFree EnvStatus = iota
	EnvDying
	EnvRunnable
	EnvRunning
	EnvNotRunnable
)

func (s EnvStatus) String() string {
	switch s {
	case EnvFree:
		return "FREE"
	case EnvDying:
		return "DYING"
	case EnvRunnable:
		return "RUNNABLE"
	case EnvRunning:
		return "RUNNING"
	case EnvNotRunnable:
		return "NOT_RUNNABLE"
	default:
		return "DESCONOCIDO"
	}
}

type PushRegs struct {
	EDI  uint32
	ESI  uint32
	EBP  uint32
	OESP uint32
	EBX  uint32
	EDX  uint32
	ECX  uint32
	EAX  uint32
}

// Trapframe es el contexto de ejecución guardado del proceso. EIP es el índice de la próxima
// instrucción de su programa y EAX el registro de retorno de las syscalls.
type Trapframe struct {
	Regs   PushRegs
	EIP    uint32
	EFlags uint32
	ESP    uint32
}

// UTrapframe es lo que el kernel apila en la pila de excepciones antes de invocar al upcall.
type UTrapframe struct {
	FaultVA uint32
	Err     uint32
	Regs    PushRegs
	EIP     uint32
	EFlags  uint32
	ESP     uint32
}

// UTrapframeSize es el tamaño en bytes de un UTrapframe serializado.
var UTrapframeSize = uintptr(binary.Size(UTrapframe{}))

// Bytes serializa el frame como quedaría en la pila de excepciones.
func (utf *UTrapframe) Bytes() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, utf)
	return buf.Bytes()
}

func (utf *UTrapframe) IsWrite() bool {
	return utf.Err&FecWr != 0
}

// Upcall es el punto de entrada de usuario para fallos de página. Corre sobre la pila de excepciones.
type Upcall func(utf *UTrapframe)

// Env es la entrada de la tabla de procesos.
type Env struct {
	ID       EnvID
	ParentID EnvID
	Status   EnvStatus
	Runs     int
	Tf       Trapframe

	AddressSpace  *memoriaModels.AddressSpace
	PgfaultUpcall Upcall
	// Program son las instrucciones que interpreta la CPU para este proceso.
	Program []string
}

// PTE es la vista de solo lectura de una entrada de tabla de páginas (uvpt).
type PTE struct {
	Frame int
	Perm  memoriaModels.Perm
}

func (pte PTE) Has(flags memoriaModels.Perm) bool {
	return pte.Perm.Has(flags)
}
