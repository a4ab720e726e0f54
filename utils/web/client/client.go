package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// DoRequest es una función genérica para realizar peticiones HTTP (GET, POST, PUT, DELETE, etc.) desde un cliente.
// Retorna la respuesta del servidor. En caso que se produzca un error va a retornar el error que se produjo.
//
// Parámetros:
//   - port: el puerto al que se hará la petición
//   - ip: la IP o dominio del servidor
//   - metodo: metodo HTTP
//   - query: parte final de la URL
//   - bodies ...[]byte: (opcional) body del request (usado por ejemplo en un POST/PUT), puede pasarse vacío.
//
// Ejemplo:
//
//	func main() {
//		response, err := client.DoRequest(8001, "127.0.0.1", "GET", "kernel/snapshot")
//		if err != nil {
//			logrus.Errorf("Ocurrió un error: %v", err)
//			return
//		}
//		defer response.Body.Close()
//
//		responseBody, _ := io.ReadAll(response.Body)
//		fmt.Printf("Response: %s", string(responseBody))
//	}
func DoRequest(port int, ip string, metodo string, query string, bodies ...[]byte) (*http.Response, error) {
	cliente := &http.Client{}

	url := fmt.Sprintf("http://%s:%d/%s", ip, port, query)

	req, err := http.NewRequest(metodo, url, ifBody(bodies...))
	if err != nil {
		log.Module("web").Errorf("error creando request a ip: %s puerto: %d", ip, port)
		return nil, errors.Wrap(err, "creando request")
	}

	req.Header.Set("Content-Type", "application/json")

	respuesta, err := cliente.Do(req)
	if err != nil {
		log.Module("web").Errorf("error enviando request a ip: %s puerto: %d - %v", ip, port, err)
		return nil, errors.Wrapf(err, "enviando request a %s", url)
	}

	// Devolvemos la respuesta junto con el error: el cuerpo puede traer más detalles
	if respuesta.StatusCode != http.StatusOK {
		err := errors.Errorf("Status Error: %d %s", respuesta.StatusCode, http.StatusText(respuesta.StatusCode))
		log.Module("web").Error(err.Error())
		return respuesta, err
	}

	return respuesta, nil
}

func ifBody(bodies ...[]byte) io.Reader {
	if len(bodies) == 0 {
		return nil
	}
	return bytes.NewBuffer(bodies[0])
}
