package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// InitConfig lee el archivo de configuración y carga sus valores en config. Si el archivo no se puede leer
// o no tiene un formato válido, finaliza con panic.
//
// Parámetros:
//   - filePath: ubicacion donde se encuentra el archivo de configuracion (.json o .toml)
//   - config: puntero a la estructura que se quiere completar
//
// Ejemplo:
//
//	type TestConfig struct {
//		Name  string `json:"name" toml:"name"`
//		Value int    `json:"value" toml:"value"`
//	}
//	func main() {
//		var testConfig TestConfig
//		config.InitConfig("./test.toml", &testConfig)
//	}
func InitConfig(filePath string, config interface{}) {
	if err := setupConfig(filePath, config); err != nil {
		panic(errors.Wrapf(err, "error al configurar el archivo %s", filePath))
	}
}

func setupConfig(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		if err := toml.Unmarshal(data, config); err != nil {
			return errors.Wrap(err, "toml inválido")
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return errors.Wrap(err, "json inválido")
		}
	}

	return nil
}
