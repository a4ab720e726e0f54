package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Para su uso se debe posicionar en la carpeta scripts
// > ./update_config port_kernel 8005
// > ./update_config quantum 5 tlb_replacement '"FIFO"'
// > ./update_config disk.backend bolt disk.path ./fs.db
//
// Las claves con punto se refieren a tablas de los .toml (disk.path es path dentro de [disk]).

var modules = []string{"kernel", "fs"}

func main() {
	// Verificar que se pasen argumentos en pares: clave1 valor1 clave2 valor2 ...
	if len(os.Args) < 3 || len(os.Args)%2 != 1 {
		fmt.Println("Uso: update_config <clave_1> <valor_1> [<clave_2> <valor_2> ...]")
		fmt.Println("Ejemplo: update_config port_kernel 8005 disk.backend bolt")
		return
	}

	updates := parseUpdates(os.Args[1:])

	fmt.Println("Valores a actualizar:")
	for k, v := range updates {
		fmt.Printf("  %s: %v\n", k, v)
	}

	for _, module := range modules {
		moduleConfigPath := filepath.Join("..", module, "configs")
		fmt.Printf("\nProcesando módulo: %s (en %s)\n", module, moduleConfigPath)

		err := filepath.Walk(moduleConfigPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				fmt.Printf("  Error al acceder %s: %v\n", path, err)
				return nil
			}
			if info.IsDir() {
				return nil
			}

			modified, err := updateFile(path, updates)
			switch {
			case err != nil:
				fmt.Printf("  %v\n", err)
			case modified:
				fmt.Printf("  El archivo %s ha sido actualizado correctamente.\n", path)
			default:
				fmt.Printf("  No se encontraron claves a actualizar en %s.\n", path)
			}
			return nil
		})
		if err != nil {
			fmt.Printf("Error al buscar archivos en la carpeta %s: %v\n", moduleConfigPath, err)
		}
	}

	fmt.Println("\nProceso de actualización de configuraciones finalizado.")
}

// parseUpdates arma el mapa clave -> valor. Cada valor se interpreta como JSON (números, booleanos,
// strings entre comillas); si no lo es, queda como string.
func parseUpdates(args []string) map[string]interface{} {
	updates := make(map[string]interface{})
	for i := 0; i+1 < len(args); i += 2 {
		var parsedValue interface{}
		if err := json.Unmarshal([]byte(args[i+1]), &parsedValue); err != nil {
			parsedValue = args[i+1]
		}
		// toml distingue enteros de flotantes
		if f, ok := parsedValue.(float64); ok && f == float64(int64(f)) {
			parsedValue = int64(f)
		}
		updates[args[i]] = parsedValue
	}
	return updates
}

// updateFile reemplaza en path las claves que ya existen. Las claves nuevas no se agregan.
func updateFile(path string, updates map[string]interface{}) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return updateJSON(path, updates)
	case ".toml":
		return updateTOML(path, updates)
	default:
		return false, nil
	}
}

func updateJSON(path string, updates map[string]interface{}) (bool, error) {
	fileContent, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrapf(err, "error al leer el archivo %s", path)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(fileContent, &data); err != nil {
		return false, errors.Wrapf(err, "error al parsear JSON en el archivo %s", path)
	}

	modified := false
	for updateKey, updateValue := range updates {
		if _, ok := data[updateKey]; ok {
			data[updateKey] = updateValue
			fmt.Printf("    Modificada '%s' en %s a '%v'\n", updateKey, path, updateValue)
			modified = true
		}
	}
	if !modified {
		return false, nil
	}

	newJSON, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return false, errors.Wrapf(err, "error al serializar JSON en el archivo %s", path)
	}
	if err := os.WriteFile(path, append(newJSON, '\n'), 0644); err != nil {
		return false, errors.Wrapf(err, "error al escribir el archivo %s", path)
	}
	return true, nil
}

func updateTOML(path string, updates map[string]interface{}) (bool, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return false, errors.Wrapf(err, "error al parsear TOML en el archivo %s", path)
	}

	modified := false
	for updateKey, updateValue := range updates {
		keyPath := strings.Split(updateKey, ".")
		if tree.HasPath(keyPath) {
			tree.SetPath(keyPath, updateValue)
			fmt.Printf("    Modificada '%s' en %s a '%v'\n", updateKey, path, updateValue)
			modified = true
		}
	}
	if !modified {
		return false, nil
	}

	if err := os.WriteFile(path, []byte(tree.String()), 0644); err != nil {
		return false, errors.Wrapf(err, "error al escribir el archivo %s", path)
	}
	return true, nil
}
