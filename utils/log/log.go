package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// InitLogger permite loguear tanto en consola como en archivo según el nivel que se le pase.
//
// Parámetros:
//   - logPath: la ubicación donde se va encontrar el archivo
//   - logLevel: nivel de logueo, este dato viene definido en el archivo de config.
//
// Ejemplo:
//
//	func main() {
//		log.InitLogger("./logs/kernel.log", "INFO")
//	}
func InitLogger(logPath string, logLevel string) {
	if dir := filepath.Dir(logPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			panic(err)
		}
	}

	//Creamos el archivo "modulo".log en modo escritura, si ocurre algún error finalizamos con panic.
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		panic(err)
	}

	logrus.SetOutput(io.MultiWriter(os.Stdout, logFile))
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	level, err := convertStringToLogLevel(logLevel)
	logrus.SetLevel(level)

	// Escribimos en el log el warning que obtenemos por no setear el logLevel
	if err != nil {
		logrus.Warn(err.Error())
	}

	logrus.Debug("Se ha configurado correctamente el logger y el archivo de configuración.")
}

// Module devuelve un logger con el campo "modulo" ya cargado, para que cada componente se identifique en el log.
func Module(name string) *logrus.Entry {
	return logrus.WithField("modulo", name)
}

// convertStringToLogLevel modifica dinámicamente el nivel de log que deseamos tener en el sistema.
func convertStringToLogLevel(levelStr string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("no existe %q, se coloca INFO por defecto", levelStr)
	}
	return level, nil
}
