package models

import (
	"fmt"

	"github.com/pkg/errors"

	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

type Config struct {
	MemorySize     int    `json:"memory_size" toml:"memory_size"`
	TlbEntries     int    `json:"tlb_entries" toml:"tlb_entries"`
	TlbReplacement string `json:"tlb_replacement" toml:"tlb_replacement"`
	Quantum        int    `json:"quantum" toml:"quantum"`
	// 0 significa sin límite
	MaxInstructions int    `json:"max_instructions" toml:"max_instructions"`
	DumpPath        string `json:"dump_path" toml:"dump_path"`
	PortKernel      int    `json:"port_kernel" toml:"port_kernel"`
	LogLevel        string `json:"log_level" toml:"log_level"`
}

var KernelConfig *Config

const (
	LogNEnv = 10
	NEnv    = 1 << LogNEnv
	// la generación arranca en el bit 12 para que ningún id sea 0
	EnvGenShift = 12
)

// Códigos de error de un fallo de página (se combinan).
const (
	FecPr uint32 = 0x1 // la página estaba presente: violación de protección
	FecWr uint32 = 0x2 // el acceso fue una escritura
	FecU  uint32 = 0x4 // el acceso vino de modo usuario
)

// Errores de syscalls.
var (
	ErrInval     = errors.New("argumento inválido")
	ErrBadEnv    = errors.New("el proceso no existe o no se tienen permisos sobre él")
	ErrNoFreeEnv = errors.New("no quedan entradas libres en la tabla de procesos")
	ErrNoMem     = memoriaModels.ErrNoMem
)

// FatalError termina un proceso. Se lanza con panic desde el código de usuario o desde el despacho de
// fallos y lo recupera Kernel.Run, que destruye el proceso.
type FatalError struct {
	EnvID EnvID
	Msg   string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("[%08x] proceso terminado: %s", e.EnvID, e.Msg)
}

func Fatalf(id EnvID, format string, args ...interface{}) *FatalError {
	return &FatalError{EnvID: id, Msg: fmt.Sprintf(format, args...)}
}
