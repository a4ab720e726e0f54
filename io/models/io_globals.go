package models

import "github.com/pkg/errors"

const SectorSize = 512

const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

type Config struct {
	Backend string `json:"backend" toml:"backend"` // "file" o "bolt"
	Path    string `json:"path" toml:"path"`
	// cantidad de sectores; solo se usa al crear el disco
	Sectors int `json:"sectors" toml:"sectors"`
	// demora por operación, en milisegundos
	Delay    int    `json:"delay" toml:"delay"`
	LogLevel string `json:"log_level" toml:"log_level"`
}

// DEFINICION DE ERRORES
var (
	ErrOutOfRange      = errors.New("sector fuera del disco")
	ErrShortBuffer     = errors.New("el buffer no alcanza para los sectores pedidos")
	ErrUnknownBackend  = errors.New("backend de disco desconocido")
	ErrBucketNotFound  = errors.New("bucket no encontrado")
	ErrInvalidGeometry = errors.New("tamaño de disco inválido")
)
