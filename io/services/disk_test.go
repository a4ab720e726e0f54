package services

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/models"
)

func openTestDisk(t *testing.T, backend string, sectors uint32) Disk {
	t.Helper()
	cfg := models.Config{Backend: backend, Path: filepath.Join(t.TempDir(), "disco."+backend), Sectors: int(sectors)}
	if backend == models.BackendFile {
		require.NoError(t, CreateFileDisk(cfg.Path, sectors))
	}
	disk, err := OpenDisk(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return disk
}

func TestDisk_RoundTrip(t *testing.T) {
	for _, backend := range []string{models.BackendFile, models.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			disk := openTestDisk(t, backend, 32)
			assert.Equal(t, uint32(32), disk.Sectors())

			src := bytes.Repeat([]byte("sector!!"), 2*models.SectorSize/8)
			require.NoError(t, disk.WriteSectors(8, src, 2))

			dst := make([]byte, 3*models.SectorSize)
			require.NoError(t, disk.ReadSectors(8, dst, 3))
			assert.Equal(t, src, dst[:2*models.SectorSize])
			// el tercer sector nunca se escribió
			assert.Equal(t, make([]byte, models.SectorSize), dst[2*models.SectorSize:])
		})
	}
}

func TestDisk_RangeChecks(t *testing.T) {
	for _, backend := range []string{models.BackendFile, models.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			disk := openTestDisk(t, backend, 16)
			buf := make([]byte, 2*models.SectorSize)

			assert.ErrorIs(t, disk.ReadSectors(15, buf, 2), models.ErrOutOfRange)
			assert.ErrorIs(t, disk.WriteSectors(0, buf, 0), models.ErrOutOfRange)
			assert.ErrorIs(t, disk.ReadSectors(0, buf[:10], 1), models.ErrShortBuffer)
		})
	}
}

func TestBoltDisk_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disco.db")

	disk, err := OpenBoltDisk(path, 8, 0)
	require.NoError(t, err)
	src := bytes.Repeat([]byte{0xAB}, models.SectorSize)
	require.NoError(t, disk.WriteSectors(3, src, 1))
	require.NoError(t, disk.Close())

	// al reabrir se respeta el tamaño guardado
	disk, err = OpenBoltDisk(path, 100, 0)
	require.NoError(t, err)
	defer disk.Close()
	assert.Equal(t, uint32(8), disk.Sectors())

	dst := make([]byte, models.SectorSize)
	require.NoError(t, disk.ReadSectors(3, dst, 1))
	assert.Equal(t, src, dst)
}

func TestOpenDisk_Errors(t *testing.T) {
	_, err := OpenDisk(models.Config{Backend: "cinta", Path: "x"})
	assert.ErrorIs(t, err, models.ErrUnknownBackend)

	_, err = OpenDisk(models.Config{Backend: models.BackendFile, Path: filepath.Join(t.TempDir(), "no-existe.img")})
	assert.Error(t, err)

	_, err = OpenBoltDisk(filepath.Join(t.TempDir(), "nuevo.db"), 0, 0)
	assert.ErrorIs(t, err, models.ErrInvalidGeometry)

	assert.ErrorIs(t, CreateFileDisk(filepath.Join(t.TempDir(), "vacio.img"), 0), models.ErrInvalidGeometry)
}
