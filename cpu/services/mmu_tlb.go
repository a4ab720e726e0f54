package services

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/models"
	kernelModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Un acceso que sigue fallando después de tantos fallos seguidos es un bucle: el manejador no está
// resolviendo la condición.
const maxFaultsPerAccess = 4

// FaultingKernel es lo que la MMU necesita del kernel: el proceso actual y la entrega de fallos.
type FaultingKernel interface {
	CurEnv() *kernelModels.Env
	PageFault(va uintptr, errCode uint32)
}

// MMU traduce los accesos del proceso actual chequeando permisos, como lo haría el hardware. Las
// traducciones se cachean en una TLB que el kernel invalida cuando cambia un mapeo.
type MMU struct {
	kernel FaultingKernel

	tlb          []models.TLBEntry
	tlbMaxSize   int
	tlbAlgorithm string // "FIFO" o "LRU"
	tlbCounter   int64  // contador incremental para FIFO y LRU
	stats        models.TLBStats

	log *logrus.Entry
}

func NewMMU(kernel FaultingKernel, tlbEntries int, tlbReplacement string) *MMU {
	return &MMU{
		kernel:       kernel,
		tlb:          make([]models.TLBEntry, 0, tlbEntries),
		tlbMaxSize:   tlbEntries,
		tlbAlgorithm: tlbReplacement,
		log:          log.Module("cpu"),
	}
}

// Read lee n bytes desde va. Puede generar fallos de página.
func (m *MMU) Read(va uintptr, n int) []byte {
	data := make([]byte, n)
	for done := 0; done < n; {
		cur := va + uintptr(done)
		entry := m.translate(cur, false)
		offset := cur - memoriaModels.RoundDown(cur)
		done += copy(data[done:], entry.Frame.Data[offset:])
	}
	return data
}

// Write escribe data desde va. Marca las páginas tocadas como sucias.
func (m *MMU) Write(va uintptr, data []byte) {
	for done := 0; done < len(data); {
		cur := va + uintptr(done)
		entry := m.translate(cur, true)
		offset := cur - memoriaModels.RoundDown(cur)
		done += copy(entry.Frame.Data[offset:], data[done:])
	}
}

func (m *MMU) ReadUint32(va uintptr) uint32 {
	return binary.LittleEndian.Uint32(m.Read(va, 4))
}

func (m *MMU) WriteUint32(va uintptr, value uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	m.Write(va, buf)
}

// translate devuelve la entrada de va con permisos suficientes para el acceso, generando fallos de
// página hasta que el manejador del proceso la deje accesible.
func (m *MMU) translate(va uintptr, write bool) *memoriaModels.PageEntry {
	need := memoriaModels.PermUser | memoriaModels.PermPresent
	if write {
		need |= memoriaModels.PermWrite
	}

	for faults := 0; ; faults++ {
		e := m.kernel.CurEnv()
		if e == nil {
			panic(kernelModels.Fatalf(0, "acceso a memoria sin proceso en ejecución - va %08x", va))
		}
		if va >= memoriaModels.UTop {
			panic(kernelModels.Fatalf(e.ID, "acceso fuera del espacio de usuario - va %08x", va))
		}

		entry := m.lookup(e, va)
		if entry != nil && entry.Perm.Has(need) {
			entry.Perm |= memoriaModels.PermAccessed
			if write {
				entry.Perm |= memoriaModels.PermDirty
			}
			return entry
		}

		if faults == maxFaultsPerAccess {
			panic(kernelModels.Fatalf(e.ID, "el fallo en va %08x no se resuelve", va))
		}

		errCode := kernelModels.FecU
		if entry != nil {
			errCode |= kernelModels.FecPr
		}
		if write {
			errCode |= kernelModels.FecWr
		}
		m.kernel.PageFault(va, errCode)
	}
}

func (m *MMU) lookup(e *kernelModels.Env, va uintptr) *memoriaModels.PageEntry {
	pageNumber := memoriaModels.PageNumber(va)

	//Verifica que la tlb no este desactivada
	if m.tlbMaxSize > 0 {
		if entry, ok := m.searchTLB(e.ID, pageNumber); ok {
			m.stats.Hits++
			m.log.Tracef("## (%08x) - TLB HIT - Pagina: %d", e.ID, pageNumber)
			return entry
		}
		m.stats.Misses++
		m.log.Tracef("## (%08x) - TLB MISS - Pagina: %d", e.ID, pageNumber)
	}

	entry, ok := e.AddressSpace.Lookup(va)
	if !ok {
		return nil
	}
	if m.tlbMaxSize > 0 {
		m.insertTLB(e.ID, pageNumber, entry)
	}
	return entry
}

func (m *MMU) searchTLB(id kernelModels.EnvID, pageNumber uintptr) (*memoriaModels.PageEntry, bool) {
	for i := range m.tlb {
		if m.tlb[i].EnvID == id && m.tlb[i].PageNumber == pageNumber {
			if m.tlbAlgorithm == "LRU" {
				m.tlbCounter++
				m.tlb[i].LastUsed = m.tlbCounter
			}
			return m.tlb[i].Entry, true
		}
	}
	return nil, false
}

func (m *MMU) insertTLB(id kernelModels.EnvID, pageNumber uintptr, entry *memoriaModels.PageEntry) {
	m.tlbCounter++
	newEntry := models.TLBEntry{
		EnvID:      id,
		PageNumber: pageNumber,
		Entry:      entry,
		InsertedAt: m.tlbCounter,
		LastUsed:   m.tlbCounter,
	}

	if len(m.tlb) < m.tlbMaxSize {
		m.tlb = append(m.tlb, newEntry)
		return
	}

	victimIndex := 0
	for i, e := range m.tlb {
		if m.tlbAlgorithm == "LRU" && e.LastUsed < m.tlb[victimIndex].LastUsed {
			victimIndex = i
		} else if m.tlbAlgorithm != "LRU" && e.InsertedAt < m.tlb[victimIndex].InsertedAt {
			victimIndex = i
		}
	}

	m.log.Debugf("TLB reemplazo: (%08x) Página %d por (%08x) Página %d",
		m.tlb[victimIndex].EnvID, m.tlb[victimIndex].PageNumber, id, pageNumber)
	m.tlb[victimIndex] = newEntry
}

// Invalidate saca de la TLB la traducción de va del proceso id.
func (m *MMU) Invalidate(id kernelModels.EnvID, va uintptr) {
	pageNumber := memoriaModels.PageNumber(va)
	m.removeWhere(func(e models.TLBEntry) bool {
		return e.EnvID == id && e.PageNumber == pageNumber
	})
}

// FlushEnv elimina las entradas de un proceso que finalizó.
func (m *MMU) FlushEnv(id kernelModels.EnvID) {
	m.removeWhere(func(e models.TLBEntry) bool {
		return e.EnvID == id
	})
}

func (m *MMU) removeWhere(match func(models.TLBEntry) bool) {
	filtered := m.tlb[:0]
	for _, entry := range m.tlb {
		if !match(entry) {
			filtered = append(filtered, entry)
		}
	}
	m.tlb = filtered
}

func (m *MMU) Stats() models.TLBStats {
	return m.stats
}

// TLBSize devuelve la cantidad de traducciones cacheadas.
func (m *MMU) TLBSize() int {
	return len(m.tlb)
}
