package services

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/models"
)

// bitmapWord devuelve la dirección de la palabra de 32 bits del bitmap que contiene a blockno.
func (bc *BlockCache) bitmapWord(blockno uint32) uintptr {
	return bc.DiskAddr(bc.super.BitmapStart) + uintptr(blockno/32)*4
}

// BlockIsFree indica si el bitmap marca a blockno como libre (bit en 1). Fuera del disco nunca está libre.
func (bc *BlockCache) BlockIsFree(blockno uint32) bool {
	if bc.super == nil || blockno >= bc.super.NBlocks {
		return false
	}
	word := binary.LittleEndian.Uint32(bc.mem.Read(bc.bitmapWord(blockno), 4))
	return word&(1<<(blockno%32)) != 0
}

func (bc *BlockCache) setBit(blockno uint32, free bool) {
	va := bc.bitmapWord(blockno)
	word := binary.LittleEndian.Uint32(bc.mem.Read(va, 4))
	if free {
		word |= 1 << (blockno % 32)
	} else {
		word &^= 1 << (blockno % 32)
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, word)
	bc.mem.Write(va, buf)
}

// LoadBitmap activa el chequeo de bloques libres en los fallos. Antes verifica que el superbloque y el
// propio bitmap estén marcados como usados.
func (bc *BlockCache) LoadBitmap() {
	if bc.super == nil {
		bc.proc.Panicf("LoadBitmap antes de cargar el superbloque")
	}

	bitmapBlocks := models.BitmapBlocks(bc.super.NBlocks)
	// forzamos la carga de los bloques del bitmap antes de activar el chequeo
	for i := uint32(0); i < bitmapBlocks; i++ {
		bc.mem.Read(bc.DiskAddr(bc.super.BitmapStart+i), 1)
	}

	bc.assert(!bc.BlockIsFree(0), "el bloque 0 figura libre")
	bc.assert(!bc.BlockIsFree(models.SuperBlockNo), "el superbloque figura libre")
	for i := uint32(0); i < bitmapBlocks; i++ {
		bc.assert(!bc.BlockIsFree(bc.super.BitmapStart+i), "un bloque del bitmap figura libre")
	}

	bc.bitmapLoaded = true
	bc.log.Info("bitmap is good")
}

// AllocBlock busca un bloque libre, lo marca usado y baja al disco el bloque del bitmap modificado.
func (bc *BlockCache) AllocBlock() (uint32, error) {
	if !bc.bitmapLoaded {
		return 0, errors.New("el bitmap no está cargado")
	}

	for blockno := uint32(1); blockno < bc.super.NBlocks; blockno++ {
		if !bc.BlockIsFree(blockno) {
			continue
		}
		bc.setBit(blockno, false)
		bc.FlushBlock(bc.bitmapWord(blockno))
		bc.log.Debugf("Bloque %d asignado", blockno)
		return blockno, nil
	}
	return 0, models.ErrNoDisk
}

// FreeBlock marca blockno como libre. Liberar el bloque 0 es un error fatal.
func (bc *BlockCache) FreeBlock(blockno uint32) {
	if blockno == 0 {
		bc.proc.Panicf("se intentó liberar el bloque 0")
	}
	if !bc.bitmapLoaded {
		bc.proc.Panicf("FreeBlock sin bitmap cargado")
	}
	bc.setBit(blockno, true)
	bc.log.Debugf("Bloque %d liberado", blockno)
}
