package services

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	cpuServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/models"
	ioModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/models"
	ioServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/services"
	kernelModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	kernelServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/lib"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

const testBlocks = 64

// countingDisk cuenta las operaciones que llegan al disco.
type countingDisk struct {
	ioServices.Disk
	reads  map[uint32]int
	writes int
}

func (d *countingDisk) ReadSectors(secno uint32, dst []byte, nsecs int) error {
	d.reads[secno/models.BlockSectors]++
	return d.Disk.ReadSectors(secno, dst, nsecs)
}

func (d *countingDisk) WriteSectors(secno uint32, src []byte, nsecs int) error {
	d.writes++
	return d.Disk.WriteSectors(secno, src, nsecs)
}

func newFileDisk(t *testing.T, blocks uint32) ioServices.Disk {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fs.img")
	require.NoError(t, ioServices.CreateFileDisk(path, blocks*models.BlockSectors))
	disk, err := ioServices.OpenFileDisk(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return disk
}

type BlockCacheSuite struct {
	suite.Suite
	k    *kernelServices.Kernel
	mmu  *cpuServices.MMU
	env  kernelModels.EnvID
	disk *countingDisk
	l    *lib.Lib
	bc   *BlockCache
}

func (s *BlockCacheSuite) SetupTest() {
	raw := newFileDisk(s.T(), testBlocks)
	_, err := Format(raw, testBlocks)
	s.Require().NoError(err)
	s.disk = &countingDisk{Disk: raw, reads: make(map[uint32]int)}

	s.k, err = kernelServices.NewKernel(64 * memoriaModels.PageSize)
	s.Require().NoError(err)
	s.mmu = cpuServices.NewMMU(s.k, 8, "LRU")
	s.k.AddInvalidator(s.mmu)
	e, err := s.k.EnvCreate(nil)
	s.Require().NoError(err)
	s.env = e.ID

	s.run(func() {
		s.l = lib.New(s.k, s.mmu)
		s.bc = NewBlockCache(s.l, s.k, s.mmu, s.disk)
		s.bc.Init()
	})
}

func (s *BlockCacheSuite) run(fn func()) {
	s.Require().NoError(s.k.Run(s.env, fn))
}

func (s *BlockCacheSuite) runFatal(fn func()) *kernelModels.FatalError {
	err := s.k.Run(s.env, fn)
	var fatal *kernelModels.FatalError
	s.Require().ErrorAs(err, &fatal)
	return fatal
}

func (s *BlockCacheSuite) diskBlock(blockno uint32) []byte {
	block := make([]byte, models.BlockSize)
	s.Require().NoError(s.disk.Disk.ReadSectors(blockno*models.BlockSectors, block, models.BlockSectors))
	return block
}

func (s *BlockCacheSuite) mappedBlocks() int {
	mapped := 0
	for b := uint32(1); b < testBlocks; b++ {
		if s.bc.VAIsMapped(models.DiskMap + uintptr(b)*models.BlockSize) {
			mapped++
		}
	}
	return mapped
}

func (s *BlockCacheSuite) TestInit_LoadsSuperAndRestoresIt() {
	s.Require().NotNil(s.bc.Super())
	s.Equal(models.Super{Magic: models.FSMagic, NBlocks: testBlocks, BitmapStart: models.BitmapStart}, *s.bc.Super())

	// el superbloque en disco quedó restaurado después del chequeo
	super, err := models.DecodeSuper(s.diskBlock(models.SuperBlockNo))
	s.Require().NoError(err)
	s.Equal(uint32(models.FSMagic), super.Magic)
	// dos ciclos romper/restaurar
	s.Equal(4, s.disk.writes)
}

func (s *BlockCacheSuite) TestDiskAddr() {
	seen := make(map[uintptr]uint32)
	s.run(func() {
		for b := uint32(1); b < testBlocks; b++ {
			addr := s.bc.DiskAddr(b)
			s.GreaterOrEqual(uint64(addr), uint64(models.DiskMap))
			s.Less(uint64(addr), uint64(models.DiskMap+models.DiskSize))
			s.Zero(addr % models.BlockSize)
			_, dup := seen[addr]
			s.False(dup)
			seen[addr] = b
		}
	})

	s.Contains(s.runFatal(func() { s.bc.DiskAddr(0) }).Msg, "inválido")
}

func (s *BlockCacheSuite) TestDiskAddr_BoundedBySuper() {
	s.Contains(s.runFatal(func() { s.bc.DiskAddr(testBlocks) }).Msg, "inválido")
}

func (s *BlockCacheSuite) TestFirstAccessReadsOnceAndIsClean() {
	s.run(func() {
		addr := s.bc.DiskAddr(5)
		s.False(s.bc.VAIsMapped(addr))

		s.mmu.Read(addr+100, 8)
		s.mmu.Read(addr, 8)

		s.Equal(1, s.disk.reads[5])
		s.True(s.bc.VAIsMapped(addr))
		s.False(s.bc.VAIsDirty(addr))
	})
}

func (s *BlockCacheSuite) TestWriteDirtyFlushAndReread() {
	s.run(func() {
		addr := s.bc.DiskAddr(5)
		s.mmu.Write(addr+10, []byte("persistente"))
		s.True(s.bc.VAIsDirty(addr))

		s.bc.FlushBlock(addr)
		s.False(s.bc.VAIsDirty(addr))
		s.True(s.bc.VAIsMapped(addr))

		s.Require().NoError(s.k.PageUnmap(0, addr))
		s.Equal("persistente", string(s.mmu.Read(addr+10, 11)))
		s.Equal(2, s.disk.reads[5])
	})
}

func (s *BlockCacheSuite) TestUnalignedFlushWritesWholeBlock() {
	s.run(func() {
		addr := s.bc.DiskAddr(6)
		s.mmu.Write(addr, []byte("inicio"))
		s.mmu.Write(addr+models.BlockSize-3, []byte("fin"))

		s.bc.FlushBlock(addr + 1234)
		s.False(s.bc.VAIsDirty(addr))
	})

	block := s.diskBlock(6)
	s.Equal("inicio", string(block[:6]))
	s.Equal("fin", string(block[models.BlockSize-3:]))
}

func (s *BlockCacheSuite) TestFlushCleanOrUnmappedIsNoop() {
	s.run(func() {
		writes := s.disk.writes
		s.bc.FlushBlock(s.bc.DiskAddr(7))

		s.mmu.Read(s.bc.DiskAddr(7), 1)
		s.bc.FlushBlock(s.bc.DiskAddr(7) + 5)
		s.Equal(writes, s.disk.writes)
	})
}

func (s *BlockCacheSuite) TestFlushOutsideRegionIsFatal() {
	s.Contains(s.runFatal(func() { s.bc.FlushBlock(0x00800000) }).Msg, "flush_block")
}

func (s *BlockCacheSuite) TestEvictionFlushesDirtyVictim() {
	s.run(func() {
		s.mmu.Write(s.bc.DiskAddr(2), []byte("sucio"))
		for b := uint32(3); b < 3+models.CacheSize; b++ {
			s.mmu.Read(s.bc.DiskAddr(b), 1)
		}
		s.False(s.bc.VAIsMapped(s.bc.DiskAddr(2)))
		s.Equal("sucio", string(s.mmu.Read(s.bc.DiskAddr(2), 5)))
	})
	s.Equal("sucio", string(s.diskBlock(2)[:5]))
	s.Positive(s.bc.Stats().Evictions)
}

func (s *BlockCacheSuite) TestNeverMoreThanCacheSizeAndSuperPinned() {
	s.run(func() {
		for round := 0; round < 3; round++ {
			for b := uint32(2); b < testBlocks; b++ {
				s.mmu.Read(s.bc.DiskAddr(b), 1)
				s.LessOrEqual(s.mappedBlocks(), models.CacheSize)
			}
		}
		s.True(s.bc.VAIsMapped(s.bc.DiskAddr(models.SuperBlockNo)))
	})

	superAddr := models.DiskMap + models.SuperBlockNo*models.BlockSize
	pinned := 0
	for _, slot := range s.bc.Slots() {
		if slot.Addr == superAddr {
			pinned++
		}
	}
	s.Equal(1, pinned)
	// las tres lecturas son las de Init
	s.Equal(3, s.disk.reads[models.SuperBlockNo])
}

func (s *BlockCacheSuite) TestVictimIsLeastRecentlyFaulted() {
	s.run(func() {
		// slot 0 es el superbloque; 2..10 llenan los slots 1..9
		for b := uint32(2); b <= 10; b++ {
			s.mmu.Read(s.bc.DiskAddr(b), 1)
		}
		s.mmu.Read(s.bc.DiskAddr(11), 1)
		s.False(s.bc.VAIsMapped(s.bc.DiskAddr(2)))
		s.Equal(s.bc.DiskAddr(11), s.bc.Slots()[1].Addr)

		// volver a cargar el bloque 3 refresca su slot en lugar de ocupar otro
		s.Require().NoError(s.k.PageUnmap(0, s.bc.DiskAddr(3)))
		s.mmu.Read(s.bc.DiskAddr(3), 1)
		s.Equal(s.bc.DiskAddr(3), s.bc.Slots()[2].Addr)

		s.mmu.Read(s.bc.DiskAddr(12), 1)
		s.False(s.bc.VAIsMapped(s.bc.DiskAddr(4)))
		s.True(s.bc.VAIsMapped(s.bc.DiskAddr(3)))
		s.Equal(s.bc.DiskAddr(12), s.bc.Slots()[3].Addr)
	})
}

func (s *BlockCacheSuite) TestVictimTieBreak() {
	superAddr := models.DiskMap + models.SuperBlockNo*models.BlockSize
	s.bc.clock = 50
	for i := range s.bc.slots {
		s.bc.slots[i] = models.CacheSlot{Addr: models.DiskMap + uintptr(i+1)*models.BlockSize, Timestamp: 40}
	}
	// el superbloque es el más viejo, pero no se puede elegir
	s.bc.slots[0] = models.CacheSlot{Addr: superAddr, Timestamp: 1}
	s.bc.slots[7].Timestamp = 10
	s.bc.slots[4].Timestamp = 10
	s.Equal(4, s.bc.victim())

	s.bc.slots[6].Addr = 0
	s.Equal(6, s.bc.victim())
}

func (s *BlockCacheSuite) TestFaultOutsideRegionIsFatal() {
	fatal := s.runFatal(func() {
		s.bc.pgfault(&kernelModels.UTrapframe{FaultVA: 0x00800000, Err: kernelModels.FecU})
	})
	s.Contains(fatal.Msg, "fallo de página en FS")
}

func (s *BlockCacheSuite) TestBitmap() {
	s.run(func() {
		s.bc.LoadBitmap()
		for _, b := range []uint32{0, 1, 2} {
			s.False(s.bc.BlockIsFree(b), "bloque %d", b)
		}
		s.True(s.bc.BlockIsFree(3))
		s.False(s.bc.BlockIsFree(testBlocks))

		blockno, err := s.bc.AllocBlock()
		s.Require().NoError(err)
		s.Equal(uint32(3), blockno)
		s.False(s.bc.BlockIsFree(3))
		s.Require().NoError(s.bc.WriteBlock(blockno, []byte("datos")))
		s.Equal("datos", string(s.bc.ReadBlock(blockno)[:5]))
	})

	// el bitmap modificado ya está en disco
	bitmap := s.diskBlock(models.BitmapStart)
	s.Zero(bitmap[0] & (1 << 3))
	s.NotZero(bitmap[0] & (1 << 4))

	s.run(func() {
		s.bc.FreeBlock(3)
		s.True(s.bc.BlockIsFree(3))
	})
}

func (s *BlockCacheSuite) TestAllocBlockExhaustion() {
	s.run(func() {
		s.bc.LoadBitmap()
		for i := 0; i < testBlocks-3; i++ {
			_, err := s.bc.AllocBlock()
			s.Require().NoError(err)
		}
		_, err := s.bc.AllocBlock()
		s.ErrorIs(err, models.ErrNoDisk)
	})
}

func (s *BlockCacheSuite) TestReadingFreeBlockIsFatal() {
	s.run(func() { s.bc.LoadBitmap() })
	fatal := s.runFatal(func() { s.mmu.Read(s.bc.DiskAddr(20), 1) })
	s.Contains(fatal.Msg, "bloque libre")
}

func (s *BlockCacheSuite) TestFreeBlockZeroIsFatal() {
	s.run(func() { s.bc.LoadBitmap() })
	s.Contains(s.runFatal(func() { s.bc.FreeBlock(0) }).Msg, "bloque 0")
}

func (s *BlockCacheSuite) TestSync() {
	s.run(func() {
		s.Require().NoError(s.bc.WriteBlock(8, []byte("uno")))
		s.Require().NoError(s.bc.WriteBlock(9, []byte("dos")))
		s.bc.Sync()
		s.False(s.bc.VAIsDirty(s.bc.DiskAddr(8)))
	})
	s.Equal("uno", string(s.diskBlock(8)[:3]))
	s.Equal("dos", string(s.diskBlock(9)[:3]))
}

func TestBlockCacheSuite(t *testing.T) {
	suite.Run(t, new(BlockCacheSuite))
}

func TestInit_BadMagicIsFatal(t *testing.T) {
	disk := newFileDisk(t, 16)
	k, err := kernelServices.NewKernel(32 * memoriaModels.PageSize)
	require.NoError(t, err)
	mmu := cpuServices.NewMMU(k, 0, "FIFO")
	k.AddInvalidator(mmu)
	e, _ := k.EnvCreate(nil)

	err = k.Run(e.ID, func() {
		NewBlockCache(lib.New(k, mmu), k, mmu, disk).Init()
	})
	var fatal *kernelModels.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Contains(t, fatal.Msg, "superbloque inválido")
}

func TestBlockCache_OverBoltDisk(t *testing.T) {
	disk, err := ioServices.OpenDisk(ioModels.Config{
		Backend: ioModels.BackendBolt,
		Path:    filepath.Join(t.TempDir(), "fs.db"),
		Sectors: 32 * models.BlockSectors,
	})
	require.NoError(t, err)
	defer disk.Close()
	_, err = Format(disk, 0)
	require.NoError(t, err)

	k, _ := kernelServices.NewKernel(32 * memoriaModels.PageSize)
	mmu := cpuServices.NewMMU(k, 4, "FIFO")
	k.AddInvalidator(mmu)
	e, _ := k.EnvCreate(nil)

	var bc *BlockCache
	require.NoError(t, k.Run(e.ID, func() {
		bc = NewBlockCache(lib.New(k, mmu), k, mmu, disk)
		bc.Init()
		bc.LoadBitmap()
		blockno, err := bc.AllocBlock()
		require.NoError(t, err)
		require.NoError(t, bc.WriteBlock(blockno, []byte("bolt")))
		bc.Sync()
	}))
	assert.Equal(t, uint32(32), bc.Super().NBlocks)

	block := make([]byte, models.BlockSize)
	require.NoError(t, disk.ReadSectors(3*models.BlockSectors, block, models.BlockSectors))
	assert.True(t, bytes.HasPrefix(block, []byte("bolt")))
}

func TestFormat_Errors(t *testing.T) {
	disk := newFileDisk(t, 8)

	_, err := Format(disk, 9)
	assert.ErrorIs(t, err, models.ErrTooSmall)
	_, err = Format(disk, 3)
	assert.ErrorIs(t, err, models.ErrTooSmall)

	super, err := Format(disk, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), super.NBlocks)
}
