package services

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Disk es el driver de sectores que consume la caché de bloques. Las operaciones son sincrónicas.
type Disk interface {
	ReadSectors(secno uint32, dst []byte, nsecs int) error
	WriteSectors(secno uint32, src []byte, nsecs int) error
	Sectors() uint32
	Close() error
}

// OpenDisk abre el disco configurado. Para el backend file el archivo tiene que existir.
func OpenDisk(cfg models.Config) (Disk, error) {
	delay := time.Duration(cfg.Delay) * time.Millisecond
	switch cfg.Backend {
	case models.BackendFile, "":
		return OpenFileDisk(cfg.Path, delay)
	case models.BackendBolt:
		return OpenBoltDisk(cfg.Path, uint32(cfg.Sectors), delay)
	default:
		return nil, errors.Wrapf(models.ErrUnknownBackend, "%q", cfg.Backend)
	}
}

// FileDisk es un disco respaldado por un archivo imagen.
type FileDisk struct {
	file    *os.File
	sectors uint32
	delay   time.Duration
	log     *logrus.Entry
}

// CreateFileDisk crea (o trunca) una imagen de sectors sectores en cero.
func CreateFileDisk(path string, sectors uint32) error {
	if sectors == 0 {
		return errors.Wrap(models.ErrInvalidGeometry, "0 sectores")
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "no se pudo crear la imagen %s", path)
	}
	defer file.Close()

	if err := file.Truncate(int64(sectors) * models.SectorSize); err != nil {
		return errors.Wrapf(err, "no se pudo dimensionar la imagen %s", path)
	}
	log.Module("io").Infof("Imagen %s creada con %d sectores", path, sectors)
	return nil
}

func OpenFileDisk(path string, delay time.Duration) (*FileDisk, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "no se pudo abrir la imagen %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat de %s", path)
	}

	sectors := uint32(info.Size() / models.SectorSize)
	if sectors == 0 {
		file.Close()
		return nil, errors.Wrapf(models.ErrInvalidGeometry, "la imagen %s está vacía", path)
	}

	d := &FileDisk{file: file, sectors: sectors, delay: delay, log: log.Module("io")}
	d.log.Debugf("Disco %s abierto - Sectores: %d", path, sectors)
	return d, nil
}

func (d *FileDisk) ReadSectors(secno uint32, dst []byte, nsecs int) error {
	if err := checkRange(d.sectors, secno, len(dst), nsecs); err != nil {
		return err
	}
	d.sleep()

	if _, err := d.file.ReadAt(dst[:nsecs*models.SectorSize], int64(secno)*models.SectorSize); err != nil {
		return errors.Wrapf(err, "lectura de %d sectores desde %d", nsecs, secno)
	}
	d.log.Tracef("Lectura - Sector: %d - Cantidad: %d", secno, nsecs)
	return nil
}

func (d *FileDisk) WriteSectors(secno uint32, src []byte, nsecs int) error {
	if err := checkRange(d.sectors, secno, len(src), nsecs); err != nil {
		return err
	}
	d.sleep()

	if _, err := d.file.WriteAt(src[:nsecs*models.SectorSize], int64(secno)*models.SectorSize); err != nil {
		return errors.Wrapf(err, "escritura de %d sectores desde %d", nsecs, secno)
	}
	d.log.Tracef("Escritura - Sector: %d - Cantidad: %d", secno, nsecs)
	return nil
}

func (d *FileDisk) Sectors() uint32 {
	return d.sectors
}

func (d *FileDisk) Close() error {
	return d.file.Close()
}

func (d *FileDisk) sleep() {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
}

func checkRange(total, secno uint32, buflen, nsecs int) error {
	if nsecs <= 0 || uint64(secno)+uint64(nsecs) > uint64(total) {
		return errors.Wrapf(models.ErrOutOfRange, "sectores %d+%d de %d", secno, nsecs, total)
	}
	if buflen < nsecs*models.SectorSize {
		return errors.Wrapf(models.ErrShortBuffer, "%d bytes para %d sectores", buflen, nsecs)
	}
	return nil
}
