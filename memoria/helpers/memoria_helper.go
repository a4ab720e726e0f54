package helpers

import (
	"fmt"
	"os"
	"time"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// crea un directorio en el path especificado.
func CreateDirectory(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		log.Module("memoria").Errorf("Error al crear el directorio %s: %v", dir, err)
		return err
	}

	log.Module("memoria").Debugf("Directorio %s creado o ya existía.", dir)
	return nil
}

func GetDumpName(pid int32) string {
	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("%d-%s.dmp", pid, timestamp)
}
