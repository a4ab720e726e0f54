package services

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

var (
	bucketKeySectors = []byte("sectors")
	bucketKeyMeta    = []byte("meta")
	keySectorCount   = []byte("sector_count")
)

// BoltDisk guarda cada sector como una clave de bbolt. Los sectores que nunca se escribieron se leen en
// cero, así que un disco nuevo no ocupa espacio.
type BoltDisk struct {
	db      *bolt.DB
	sectors uint32
	delay   time.Duration
	log     *logrus.Entry
}

// OpenBoltDisk abre la base en path. Si es nueva se dimensiona con sectors; si ya existe se usa el
// tamaño guardado y sectors se ignora.
func OpenBoltDisk(path string, sectors uint32, delay time.Duration) (*BoltDisk, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "no se pudo abrir %s", path)
	}

	d := &BoltDisk{db: db, delay: delay, log: log.Module("io")}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKeySectors); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketKeyMeta)
		if err != nil {
			return err
		}
		if stored := meta.Get(keySectorCount); stored != nil {
			d.sectors = binary.BigEndian.Uint32(stored)
			return nil
		}
		if sectors == 0 {
			return errors.Wrap(models.ErrInvalidGeometry, "disco nuevo sin cantidad de sectores")
		}
		d.sectors = sectors
		return meta.Put(keySectorCount, sectorKey(sectors))
	}); err != nil {
		db.Close()
		return nil, err
	}

	d.log.Debugf("Disco bolt %s abierto - Sectores: %d", path, d.sectors)
	return d, nil
}

func sectorKey(secno uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, secno)
	return key
}

func (d *BoltDisk) ReadSectors(secno uint32, dst []byte, nsecs int) error {
	if err := checkRange(d.sectors, secno, len(dst), nsecs); err != nil {
		return err
	}
	d.sleep()

	return d.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKeySectors)
		if bkt == nil {
			return errors.Wrapf(models.ErrBucketNotFound, "bucket %s", bucketKeySectors)
		}
		for i := 0; i < nsecs; i++ {
			sector := dst[i*models.SectorSize : (i+1)*models.SectorSize]
			if data := bkt.Get(sectorKey(secno + uint32(i))); data != nil {
				copy(sector, data)
			} else {
				clear(sector)
			}
		}
		return nil
	})
}

func (d *BoltDisk) WriteSectors(secno uint32, src []byte, nsecs int) error {
	if err := checkRange(d.sectors, secno, len(src), nsecs); err != nil {
		return err
	}
	d.sleep()

	return d.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKeySectors)
		if bkt == nil {
			return errors.Wrapf(models.ErrBucketNotFound, "bucket %s", bucketKeySectors)
		}
		for i := 0; i < nsecs; i++ {
			// Put se queda con el slice hasta el commit: se copia
			sector := make([]byte, models.SectorSize)
			copy(sector, src[i*models.SectorSize:])
			if err := bkt.Put(sectorKey(secno+uint32(i)), sector); err != nil {
				return errors.Wrapf(err, "sector %d", secno+uint32(i))
			}
		}
		return nil
	})
}

func (d *BoltDisk) Sectors() uint32 {
	return d.sectors
}

func (d *BoltDisk) Close() error {
	return d.db.Close()
}

func (d *BoltDisk) sleep() {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
}
