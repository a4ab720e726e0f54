package services

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/models"
	ioServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/services"
	kernelModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/lib"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Process es lo que la caché necesita de la biblioteca del proceso que la aloja.
type Process interface {
	SetPgfaultRegionHandler(lo, hi uintptr, h lib.PgfaultHandler)
	Panicf(format string, args ...interface{})
}

// BlockCache mapea el disco en [DiskMap, DiskMap+DiskSize): cada bloque se carga en su página la primera
// vez que se toca y las páginas sucias vuelven al disco al desalojarlas o con FlushBlock. Como mucho hay
// CacheSize bloques mapeados; se desaloja el de mayor tiempo sin uso, salvo el del superbloque.
//
// Todos los métodos deben llamarse ejecutando como el proceso dueño de la caché.
type BlockCache struct {
	proc Process
	sys  lib.Syscalls
	mem  lib.Memory
	disk ioServices.Disk

	slots [models.CacheSize]models.CacheSlot
	clock uint32

	super        *models.Super
	bitmapLoaded bool
	stats        models.Stats

	log *logrus.Entry
}

func NewBlockCache(proc Process, sys lib.Syscalls, mem lib.Memory, disk ioServices.Disk) *BlockCache {
	return &BlockCache{
		proc: proc,
		sys:  sys,
		mem:  mem,
		disk: disk,
		log:  log.Module("fs"),
	}
}

// DiskAddr devuelve la dirección virtual del bloque. El bloque 0 nunca es válido y, con el superbloque
// cargado, tampoco los que están fuera del disco.
func (bc *BlockCache) DiskAddr(blockno uint32) uintptr {
	if blockno == 0 || blockno >= models.MaxBlocks || (bc.super != nil && blockno >= bc.super.NBlocks) {
		bc.proc.Panicf("número de bloque inválido %08x en diskaddr", blockno)
	}
	return models.DiskMap + uintptr(blockno)*models.BlockSize
}

func (bc *BlockCache) VAIsMapped(va uintptr) bool {
	if !bc.sys.PageDirLookup(va) {
		return false
	}
	pte, ok := bc.sys.PageLookup(va)
	return ok && pte.Has(memoriaModels.PermPresent)
}

func (bc *BlockCache) VAIsDirty(va uintptr) bool {
	pte, ok := bc.sys.PageLookup(va)
	return ok && pte.Has(memoriaModels.PermDirty)
}

func inDiskMap(va uintptr) bool {
	return va >= models.DiskMap && va < models.DiskMap+models.DiskSize
}

// pgfault carga desde el disco el bloque que contiene la dirección del fallo.
func (bc *BlockCache) pgfault(utf *kernelModels.UTrapframe) {
	addr := uintptr(utf.FaultVA)
	if !inDiskMap(addr) {
		bc.proc.Panicf("fallo de página en FS: eip %08x, va %08x, err %04x", utf.EIP, addr, utf.Err)
	}

	blockno := uint32((addr - models.DiskMap) / models.BlockSize)
	if bc.super != nil && blockno >= bc.super.NBlocks {
		bc.proc.Panicf("lectura de un bloque inexistente %08x", blockno)
	}

	addr = memoriaModels.RoundDown(addr)
	if err := bc.sys.PageAlloc(0, addr, memoriaModels.PermUser|memoriaModels.PermWrite|memoriaModels.PermPresent); err != nil {
		bc.proc.Panicf("bc_pgfault: sys_page_alloc: %v", err)
	}

	block := make([]byte, models.BlockSize)
	if err := bc.disk.ReadSectors(blockno*models.BlockSectors, block, models.BlockSectors); err != nil {
		bc.proc.Panicf("bc_pgfault: lectura del bloque %d: %v", blockno, err)
	}
	bc.stats.DiskReads++
	bc.mem.Write(addr, block)

	// la copia desde el disco no cuenta como escritura
	pte, _ := bc.sys.PageLookup(addr)
	if err := bc.sys.PageMap(0, addr, 0, addr, pte.Perm&memoriaModels.PermSyscall); err != nil {
		bc.proc.Panicf("bc_pgfault: sys_page_map: %v", err)
	}

	// recién ahora se puede mirar el bitmap: si el fallo es del propio bitmap, ya está cargado
	if bc.bitmapLoaded && bc.BlockIsFree(blockno) {
		bc.proc.Panicf("lectura de un bloque libre %08x", blockno)
	}

	bc.log.Debugf("Bloque %d cargado en %08x", blockno, addr)
	bc.touch(addr)
}

// touch avanza el reloj y registra el acceso a addr en la tabla, desalojando una víctima si hace falta.
func (bc *BlockCache) touch(addr uintptr) {
	bc.clock++
	for i := range bc.slots {
		if bc.slots[i].Addr == addr {
			bc.slots[i].Timestamp = bc.clock
			return
		}
	}

	evict := bc.victim()
	if old := bc.slots[evict].Addr; old != 0 && old != addr && bc.VAIsMapped(old) {
		if bc.VAIsDirty(old) {
			bc.FlushBlock(old)
		}
		if err := bc.sys.PageUnmap(0, old); err != nil {
			bc.proc.Panicf("bc_pgfault: sys_page_unmap: %v", err)
		}
		bc.stats.Evictions++
		bc.log.Debugf("Desalojo - Página: %08x - Slot: %d - Nueva: %08x", old, evict, addr)
	}
	bc.slots[evict] = models.CacheSlot{Addr: addr, Timestamp: bc.clock}
}

// victim elige el slot a reemplazar: primero el slot libre de menor índice; si no hay, el de mayor tiempo
// sin uso, con empate para el de menor índice. El slot del superbloque nunca se elige.
func (bc *BlockCache) victim() int {
	for i, slot := range bc.slots {
		if slot.Addr == 0 {
			return i
		}
	}

	pinned := models.DiskMap + models.SuperBlockNo*models.BlockSize
	evict := -1
	for i, slot := range bc.slots {
		if slot.Addr == pinned {
			continue
		}
		if evict < 0 || bc.clock-slot.Timestamp > bc.clock-bc.slots[evict].Timestamp {
			evict = i
		}
	}
	return evict
}

// FlushBlock escribe en el disco el bloque que contiene addr si está mapeado y sucio, y limpia el bit
// de sucio. addr puede apuntar a cualquier byte del bloque.
func (bc *BlockCache) FlushBlock(addr uintptr) {
	if !inDiskMap(addr) {
		bc.proc.Panicf("flush_block de una va inválida %08x", addr)
	}

	addr = memoriaModels.RoundDown(addr)
	if !bc.VAIsMapped(addr) || !bc.VAIsDirty(addr) {
		return
	}

	blockno := uint32((addr - models.DiskMap) / models.BlockSize)
	block := bc.mem.Read(addr, models.BlockSize)
	if err := bc.disk.WriteSectors(blockno*models.BlockSectors, block, models.BlockSectors); err != nil {
		bc.proc.Panicf("flush_block: escritura del bloque %d: %v", blockno, err)
	}
	bc.stats.DiskWrites++

	pte, _ := bc.sys.PageLookup(addr)
	if err := bc.sys.PageMap(0, addr, 0, addr, pte.Perm&memoriaModels.PermSyscall); err != nil {
		bc.proc.Panicf("flush_block: sys_page_map: %v", err)
	}
	bc.log.Debugf("Bloque %d escrito en disco", blockno)
}

// Sync baja al disco todos los bloques sucios de la caché.
func (bc *BlockCache) Sync() {
	for _, slot := range bc.slots {
		if slot.Addr != 0 {
			bc.FlushBlock(slot.Addr)
		}
	}
}

// Init instala el manejador de fallos de la región del disco, verifica la caché escribiendo y releyendo
// el superbloque y lo deja cargado.
func (bc *BlockCache) Init() {
	bc.proc.SetPgfaultRegionHandler(models.DiskMap, models.DiskMap+models.DiskSize, bc.pgfault)
	bc.check()

	super, err := models.DecodeSuper(bc.mem.Read(bc.DiskAddr(models.SuperBlockNo), models.SuperSize))
	if err != nil {
		bc.proc.Panicf("%v", err)
	}
	if super.Magic != models.FSMagic {
		bc.proc.Panicf("%v: magic %08x", models.ErrBadSuper, super.Magic)
	}
	if super.NBlocks > bc.disk.Sectors()/models.BlockSectors || super.NBlocks > models.MaxBlocks {
		bc.proc.Panicf("%v: %d bloques en un disco de %d sectores", models.ErrBadSuper, super.NBlocks, bc.disk.Sectors())
	}
	bc.super = &super
	bc.log.Infof("Superbloque cargado - Bloques: %d - Bitmap: %d", super.NBlocks, super.BitmapStart)
}

// check rompe el superbloque en memoria, lo baja al disco, lo desmapea y lo vuelve a leer: tiene que
// volver roto. Después lo restaura. Se hace dos veces, la segunda con una dirección sin alinear.
func (bc *BlockCache) check() {
	superAddr := bc.DiskAddr(models.SuperBlockNo)
	smashed := []byte("OOPS!\n\x00")

	for _, flushAddr := range []uintptr{superAddr, superAddr + 20} {
		backup := bc.mem.Read(superAddr, models.SuperSize)

		bc.mem.Write(superAddr, smashed)
		bc.FlushBlock(flushAddr)
		bc.assert(bc.VAIsMapped(superAddr), "el superbloque debería seguir mapeado")
		bc.assert(!bc.VAIsDirty(superAddr), "el superbloque debería estar limpio")

		if err := bc.sys.PageUnmap(0, superAddr); err != nil {
			bc.proc.Panicf("check_bc: sys_page_unmap: %v", err)
		}
		bc.assert(!bc.VAIsMapped(superAddr), "el superbloque no debería estar mapeado")

		bc.assert(bytes.Equal(bc.mem.Read(superAddr, len(smashed)), smashed), "el superbloque no volvió del disco")

		bc.mem.Write(superAddr, backup)
		bc.FlushBlock(superAddr)
	}

	bc.log.Info("block cache is good")
}

func (bc *BlockCache) assert(cond bool, msg string) {
	if !cond {
		bc.proc.Panicf("check_bc: %s", msg)
	}
}

// ReadBlock devuelve una copia del contenido del bloque.
func (bc *BlockCache) ReadBlock(blockno uint32) []byte {
	return bc.mem.Read(bc.DiskAddr(blockno), models.BlockSize)
}

// WriteBlock escribe data al principio del bloque. Queda sucio hasta el próximo flush o desalojo.
func (bc *BlockCache) WriteBlock(blockno uint32, data []byte) error {
	if len(data) > models.BlockSize {
		return errors.Errorf("%d bytes no entran en un bloque", len(data))
	}
	bc.mem.Write(bc.DiskAddr(blockno), data)
	return nil
}

// Super devuelve el superbloque cargado, o nil antes de Init.
func (bc *BlockCache) Super() *models.Super {
	return bc.super
}

// Slots devuelve una copia de la tabla de la caché.
func (bc *BlockCache) Slots() []models.CacheSlot {
	slots := make([]models.CacheSlot, len(bc.slots))
	copy(slots, bc.slots[:])
	return slots
}

func (bc *BlockCache) Stats() models.Stats {
	return bc.stats
}
