package services

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// PhysicalMemory administra el pool fijo de frames de la máquina.
type PhysicalMemory struct {
	frames     []*models.Frame
	freeFrames []bool
	freeCount  int
	log        *logrus.Entry
}

// NewPhysicalMemory crea la memoria física con memorySize bytes (redondeado hacia abajo a páginas).
func NewPhysicalMemory(memorySize int) (*PhysicalMemory, error) {
	count := memorySize / models.PageSize
	if count <= 0 {
		return nil, errors.Wrapf(models.ErrInvalidArea, "memory_size %d menor a una página", memorySize)
	}

	pm := &PhysicalMemory{
		frames:     make([]*models.Frame, count),
		freeFrames: make([]bool, count),
		freeCount:  count,
		log:        log.Module("memoria"),
	}
	for i := range pm.frames {
		pm.frames[i] = &models.Frame{Number: i}
		pm.freeFrames[i] = true
	}

	pm.log.Debugf("Memoria inicializada con %d frames", count)
	return pm, nil
}

// Alloc devuelve un frame libre, con su contenido en cero y sin referencias.
func (pm *PhysicalMemory) Alloc() (*models.Frame, error) {
	for i, free := range pm.freeFrames {
		if !free {
			continue
		}
		pm.freeFrames[i] = false
		pm.freeCount--

		frame := pm.frames[i]
		if frame.Data == nil {
			frame.Data = make([]byte, models.PageSize)
		} else {
			clear(frame.Data)
		}
		frame.Ref = 0
		return frame, nil
	}

	pm.log.Error("No hay frames libres disponibles para asignar")
	return nil, models.ErrNoMem
}

func (pm *PhysicalMemory) IncRef(frame *models.Frame) {
	frame.Ref++
}

// DecRef suelta una referencia y libera el frame cuando nadie más lo mapea.
func (pm *PhysicalMemory) DecRef(frame *models.Frame) {
	if frame.Ref--; frame.Ref > 0 {
		return
	}
	frame.Ref = 0
	if !pm.freeFrames[frame.Number] {
		pm.freeFrames[frame.Number] = true
		pm.freeCount++
	}
}

func (pm *PhysicalMemory) Frame(number int) (*models.Frame, error) {
	if number < 0 || number >= len(pm.frames) {
		return nil, errors.Wrapf(models.ErrInvalidArea, "frame %d fuera de rango", number)
	}
	return pm.frames[number], nil
}

func (pm *PhysicalMemory) IsFree(number int) bool {
	return number >= 0 && number < len(pm.freeFrames) && pm.freeFrames[number]
}

func (pm *PhysicalMemory) FreeCount() int {
	return pm.freeCount
}

func (pm *PhysicalMemory) TotalFrames() int {
	return len(pm.frames)
}

// Insert mapea frame en va con perm. Si ya había otra página ahí, la reemplaza y suelta su referencia.
// La referencia nueva se toma antes de soltar la vieja para que remapear el mismo frame no lo libere.
func (pm *PhysicalMemory) Insert(as *models.AddressSpace, va uintptr, frame *models.Frame, perm models.Perm) *models.PageEntry {
	pm.IncRef(frame)
	entry := &models.PageEntry{Frame: frame, Perm: perm | models.PermPresent}
	if old := as.Set(va, entry); old != nil {
		pm.DecRef(old.Frame)
	}
	return entry
}

// Remove desmapea va. Devuelve false si no había nada mapeado.
func (pm *PhysicalMemory) Remove(as *models.AddressSpace, va uintptr) bool {
	old := as.Delete(va)
	if old == nil {
		return false
	}
	pm.DecRef(old.Frame)
	return true
}

// Release desmapea todo el espacio de direcciones.
func (pm *PhysicalMemory) Release(as *models.AddressSpace) {
	for _, va := range as.Pages() {
		pm.Remove(as, va)
	}
}
