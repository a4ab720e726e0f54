package services

import (
	cpuServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/models"
	ioServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/services"
	kernelServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/lib"
)

// Session levanta un kernel con un único proceso, el servidor de archivos, y corre fn dentro de él con
// la caché ya inicializada. Si el proceso muere por un error fatal, Session devuelve ese error; el de
// fn se devuelve tal cual. Al terminar, los bloques sucios se bajan al disco.
func Session(cfg models.Config, disk ioServices.Disk, fn func(bc *BlockCache) error) error {
	k, err := kernelServices.NewKernel(cfg.MemorySize)
	if err != nil {
		return err
	}
	mmu := cpuServices.NewMMU(k, cfg.TlbEntries, "LRU")
	k.AddInvalidator(mmu)

	e, err := k.EnvCreate(nil)
	if err != nil {
		return err
	}

	var fnErr error
	err = k.Run(e.ID, func() {
		bc := NewBlockCache(lib.New(k, mmu), k, mmu, disk)
		bc.Init()
		bc.LoadBitmap()
		fnErr = fn(bc)
		bc.Sync()

		stats := bc.Stats()
		bc.log.Debugf("Lecturas: %d - Escrituras: %d - Desalojos: %d", stats.DiskReads, stats.DiskWrites, stats.Evictions)
	})
	if err != nil {
		return err
	}
	return fnErr
}
