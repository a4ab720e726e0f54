package models

import "strings"

type Config struct {
	MemorySize int    `json:"memory_size" toml:"memory_size"`
	DumpPath   string `json:"dump_path" toml:"dump_path"`
	LogLevel   string `json:"log_level" toml:"log_level"`
}

// Tamaño de página fijo: coincide con el tamaño de bloque del disco.
const (
	PageShift = 12
	PageSize  = 1 << PageShift

	// Cada entrada de directorio cubre 4 MiB (1024 páginas).
	PageDirShift = 22
	PtSize       = 1 << PageDirShift
)

// Mapa del espacio de direcciones de usuario.
const (
	// UTemp y PFTemp quedan en el directorio anterior a UText, fuera del código y los datos
	UTemp      uintptr = PtSize
	PFTemp     uintptr = UTemp + PtSize - PageSize
	UText      uintptr = 2 * PtSize
	UTop       uintptr = 0xEEC00000
	UXStackTop uintptr = UTop
	UStackTop  uintptr = UTop - 2*PageSize
)

// Perm son los bits de una entrada de tabla de páginas.
type Perm uint32

const (
	PermPresent  Perm = 0x001
	PermWrite    Perm = 0x002
	PermUser     Perm = 0x004
	PermAccessed Perm = 0x020
	PermDirty    Perm = 0x040
	PermAvail    Perm = 0xE00

	// Bits disponibles para el usuario.
	PermShare Perm = 0x400
	PermCOW   Perm = 0x800

	// Únicos bits que se pueden pasar a las syscalls de memoria.
	PermSyscall = PermAvail | PermPresent | PermWrite | PermUser
)

func (p Perm) Has(flags Perm) bool {
	return p&flags == flags
}

// String arma la representación que usa ShowMappings, por ejemplo "C-D-U-P" para una página COW sucia.
func (p Perm) String() string {
	var sb strings.Builder
	flags := []struct {
		flag Perm
		char byte
	}{
		{PermCOW, 'C'}, {PermShare, 'S'}, {PermDirty, 'D'}, {PermAccessed, 'A'},
		{PermUser, 'U'}, {PermWrite, 'W'}, {PermPresent, 'P'},
	}
	for _, f := range flags {
		if p&f.flag != 0 {
			sb.WriteByte(f.char)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

func RoundDown(va uintptr) uintptr {
	return va &^ (PageSize - 1)
}

func PageNumber(va uintptr) uintptr {
	return va >> PageShift
}

func PageDirIndex(va uintptr) uintptr {
	return va >> PageDirShift
}
