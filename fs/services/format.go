package services

import (
	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/models"
	ioServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Format escribe en el disco un superbloque y un bitmap vacío para nblocks bloques. Los bloques 0, 1 y
// los del bitmap quedan marcados como usados. Con nblocks en 0 se usa el disco entero.
func Format(disk ioServices.Disk, nblocks uint32) (models.Super, error) {
	diskBlocks := disk.Sectors() / models.BlockSectors
	if nblocks == 0 {
		nblocks = min(diskBlocks, models.MaxBlocks)
	}
	if nblocks > diskBlocks || nblocks > models.MaxBlocks {
		return models.Super{}, errors.Wrapf(models.ErrTooSmall, "%d bloques pedidos, el disco tiene %d", nblocks, diskBlocks)
	}

	bitmapBlocks := models.BitmapBlocks(nblocks)
	firstData := uint32(models.BitmapStart) + bitmapBlocks
	if nblocks <= firstData {
		return models.Super{}, errors.Wrapf(models.ErrTooSmall, "%d bloques no alcanzan para superbloque y bitmap", nblocks)
	}

	bitmap := make([]byte, bitmapBlocks*models.BlockSize)
	for b := firstData; b < nblocks; b++ {
		bitmap[b/8] |= 1 << (b % 8)
	}
	for i := uint32(0); i < bitmapBlocks; i++ {
		block := bitmap[i*models.BlockSize : (i+1)*models.BlockSize]
		if err := disk.WriteSectors((models.BitmapStart+i)*models.BlockSectors, block, models.BlockSectors); err != nil {
			return models.Super{}, errors.Wrapf(err, "escribiendo el bloque de bitmap %d", models.BitmapStart+i)
		}
	}

	super := models.Super{Magic: models.FSMagic, NBlocks: nblocks, BitmapStart: models.BitmapStart}
	block := make([]byte, models.BlockSize)
	copy(block, super.Bytes())
	if err := disk.WriteSectors(models.SuperBlockNo*models.BlockSectors, block, models.BlockSectors); err != nil {
		return models.Super{}, errors.Wrap(err, "escribiendo el superbloque")
	}

	log.Module("fs").Infof("Disco formateado - Bloques: %d - Bloques de bitmap: %d", nblocks, bitmapBlocks)
	return super, nil
}
