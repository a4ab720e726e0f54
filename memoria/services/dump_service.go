package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/helpers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Mapping es una fila de ShowMappings.
type Mapping struct {
	VA    uintptr `json:"va"`
	Frame int     `json:"frame"`
	Perm  string  `json:"perm"`
	Ref   int     `json:"ref"`
}

// ShowMappings lista las páginas presentes entre from y to (ambas inclusive).
func ShowMappings(as *models.AddressSpace, from, to uintptr) []Mapping {
	pages := lo.Filter(as.Pages(), func(va uintptr, _ int) bool {
		return va >= models.RoundDown(from) && va <= to
	})

	return lo.Map(pages, func(va uintptr, _ int) Mapping {
		entry, _ := as.Lookup(va)
		return Mapping{
			VA:    va,
			Frame: entry.Frame.Number,
			Perm:  entry.Perm.String(),
			Ref:   entry.Frame.Ref,
		}
	})
}

// ChangePerm reemplaza los permisos de una página ya mapeada. Present se conserva siempre.
func ChangePerm(as *models.AddressSpace, va uintptr, perm models.Perm) error {
	entry, ok := as.Lookup(va)
	if !ok {
		return errors.Wrapf(models.ErrInvalidArea, "la página %#x no está mapeada", va)
	}
	entry.Perm = perm | models.PermPresent
	return nil
}

// DumpVirtual arma un volcado hexadecimal de [from, to) visto desde el espacio de direcciones,
// 16 bytes por línea. Las páginas ausentes se informan sin contenido.
func DumpVirtual(as *models.AddressSpace, from, to uintptr) string {
	var sb strings.Builder
	for va := from &^ 0xF; va < to; va += 16 {
		entry, ok := as.Lookup(va)
		if !ok {
			fmt.Fprintf(&sb, "0x%08x: <sin mapear>\n", va)
			// saltamos al final de la página
			va = models.RoundDown(va) + models.PageSize - 16
			continue
		}
		offset := va - models.RoundDown(va)
		fmt.Fprintf(&sb, "0x%08x: % x\n", va, entry.Frame.Data[offset:offset+16])
	}
	return sb.String()
}

// DumpPhysical vuelca el contenido de los frames entre first y last (ambos inclusive).
func (pm *PhysicalMemory) DumpPhysical(first, last int) (string, error) {
	if first > last {
		return "", errors.Wrapf(models.ErrInvalidArea, "rango de frames %d-%d", first, last)
	}

	var sb strings.Builder
	for n := first; n <= last; n++ {
		frame, err := pm.Frame(n)
		if err != nil {
			return "", err
		}
		if pm.IsFree(n) || frame.Data == nil {
			fmt.Fprintf(&sb, "frame %d: libre\n", n)
			continue
		}
		fmt.Fprintf(&sb, "frame %d (ref %d):\n", n, frame.Ref)
		for off := 0; off < models.PageSize; off += 16 {
			fmt.Fprintf(&sb, "  0x%08x: % x\n", n*models.PageSize+off, frame.Data[off:off+16])
		}
	}
	return sb.String(), nil
}

// DumpMemory escribe en dumpPath el contenido de todas las páginas presentes del proceso, en orden de
// dirección virtual. Devuelve la ruta del archivo generado.
func DumpMemory(as *models.AddressSpace, dumpPath string, pid int32) (string, error) {
	log.Module("memoria").Infof("## PID: %d - Memory Dump solicitado", pid)

	if err := helpers.CreateDirectory(dumpPath); err != nil {
		return "", err
	}
	dumpFilePath := filepath.Join(dumpPath, helpers.GetDumpName(pid))

	file, err := os.Create(dumpFilePath)
	if err != nil {
		return "", errors.Wrap(err, "error al crear archivo de dump")
	}
	defer file.Close()

	for _, va := range as.Pages() {
		entry, _ := as.Lookup(va)
		if _, err := file.Write(entry.Frame.Data); err != nil {
			return "", errors.Wrapf(err, "fallo al escribir la página %#x al archivo de dump", va)
		}
	}

	log.Module("memoria").Infof("Memory Dump completado para PID %d (%d páginas)", pid, as.Len())
	return dumpFilePath, nil
}
