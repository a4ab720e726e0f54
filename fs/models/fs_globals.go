package models

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	ioModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

type Config struct {
	Disk ioModels.Config `toml:"disk" json:"disk"`
	// bloques del sistema de archivos al formatear; 0 usa todo el disco
	NBlocks    int    `toml:"nblocks" json:"nblocks"`
	MemorySize int    `toml:"memory_size" json:"memory_size"`
	TlbEntries int    `toml:"tlb_entries" json:"tlb_entries"`
	LogLevel   string `toml:"log_level" json:"log_level"`
}

var FsConfig *Config

const (
	BlockSize    = memoriaModels.PageSize
	BlockSectors = BlockSize / ioModels.SectorSize
	BitsPerBlock = BlockSize * 8

	FSMagic = 0x4A0530AE

	// el bloque 1 siempre es el superbloque y el bitmap arranca en el 2
	SuperBlockNo = 1
	BitmapStart  = 2

	CacheSize = 10
)

// Región de memoria virtual donde se mapea el disco entero, un bloque por página.
const (
	DiskMap  uintptr = 0x10000000
	DiskSize uintptr = 0xC0000000

	MaxBlocks = uint32(DiskSize / BlockSize)
)

// Super es el superbloque, tal como está en el disco (little endian).
type Super struct {
	Magic       uint32
	NBlocks     uint32
	BitmapStart uint32
}

var SuperSize = binary.Size(Super{})

func (s *Super) Bytes() []byte {
	buf := make([]byte, SuperSize)
	binary.LittleEndian.PutUint32(buf[0:], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:], s.NBlocks)
	binary.LittleEndian.PutUint32(buf[8:], s.BitmapStart)
	return buf
}

func DecodeSuper(data []byte) (Super, error) {
	var s Super
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &s); err != nil {
		return Super{}, errors.Wrap(ErrBadSuper, err.Error())
	}
	return s, nil
}

// BitmapBlocks es la cantidad de bloques de bitmap que necesita un disco de nblocks bloques.
func BitmapBlocks(nblocks uint32) uint32 {
	return (nblocks + BitsPerBlock - 1) / BitsPerBlock
}

// CacheSlot es una entrada de la tabla de la caché: qué página ocupa y cuándo se tocó por última vez.
type CacheSlot struct {
	Addr      uintptr `json:"addr"`
	Timestamp uint32  `json:"timestamp"`
}

type Stats struct {
	DiskReads  int `json:"disk_reads"`
	DiskWrites int `json:"disk_writes"`
	Evictions  int `json:"evictions"`
}

// DEFINICION DE ERRORES
var (
	ErrBadSuper = errors.New("superbloque inválido")
	ErrNoDisk   = errors.New("no quedan bloques libres")
	ErrTooSmall = errors.New("disco demasiado chico")
)
