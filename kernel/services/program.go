package services

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadProgram lee un archivo de pseudocódigo: una instrucción por línea. Las líneas vacías y las que
// empiezan con '#' se ignoran.
func LoadProgram(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "no se pudo abrir el pseudocódigo %s", path)
	}
	defer file.Close()

	var program []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		program = append(program, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "leyendo %s", path)
	}
	if len(program) == 0 {
		return nil, errors.Errorf("el pseudocódigo %s está vacío", path)
	}
	return program, nil
}
