package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// InitServer inicializa el servidor, en caso de no poder levantarlo retorna un error. Con handler en nil
// se usa http.DefaultServeMux.
//
// Parámetros:
//   - port: puerto donde se iniciará el servidor
//   - handler: el mux con las rutas registradas
//
// Ejemplo:
//
//	func main() {
//		mux := http.NewServeMux()
//		mux.HandleFunc("GET /kernel", handlers.HandshakeHandler("Kernel en funcionamiento"))
//		if err := server.InitServer(models.KernelConfig.PortKernel, mux); err != nil {
//			panic(err)
//		}
//	}
func InitServer(port int, handler http.Handler) error {
	addr := ":" + strconv.Itoa(port)
	log.Module("web").Infof("Escuchando en el puerto %s", addr)

	err := http.ListenAndServe(addr, handler)
	if err != nil {
		log.Module("web").Errorf("Error al escuchar en el puerto %s: %v", addr, err)
		return errors.Wrapf(err, "servidor en %s", addr)
	}
	return nil
}

// SendJsonResponse retorna la respues del servidor en formato JSON
//
// Parámetros:
//   - writer: el http.ResponseWriter con el que se escribe la respuesta HTTP
//   - data: cualquier estructura de datos que querés enviar al cliente, se convierte automáticamente a JSON.
//
// Ejemplo:
//
//	func HandshakeHandler(message string) func(http.ResponseWriter, *http.Request) {
//		return func(writer http.ResponseWriter, request *http.Request) {
//			server.SendJsonResponse(writer, message)
//		}
//	}
func SendJsonResponse(writer http.ResponseWriter, data interface{}) {
	response, err := json.Marshal(data)
	if err != nil {
		http.Error(writer, "Error al convertir datos a JSON", http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusOK)
	writer.Write(response)
}

// SendTextResponse retorna texto plano, para los volcados de memoria.
func SendTextResponse(writer http.ResponseWriter, text string) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writer.WriteHeader(http.StatusOK)
	writer.Write([]byte(text))
}
