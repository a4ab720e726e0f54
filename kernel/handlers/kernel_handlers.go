package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/services"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/web/server"
)

// kernelMutex serializa los accesos al kernel desde los handlers.
var kernelMutex sync.Mutex

type PermRequest struct {
	VA   uintptr `json:"va"`
	Perm uint32  `json:"perm"`
}

func SnapshotHandler(k *services.Kernel) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		kernelMutex.Lock()
		defer kernelMutex.Unlock()
		server.SendJsonResponse(w, k.Snapshot())
	}
}

// EnvHandler devuelve la foto de un solo proceso: GET /kernel/envs/{id}.
func EnvHandler(k *services.Kernel) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := envIDFromPath(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		kernelMutex.Lock()
		defer kernelMutex.Unlock()
		for _, e := range k.Snapshot().Envs {
			if e.ID == id {
				server.SendJsonResponse(w, e)
				return
			}
		}
		http.Error(w, "proceso inexistente", http.StatusNotFound)
	}
}

// ChangePermHandler cambia los permisos de una página: POST /kernel/envs/{id}/perm.
func ChangePermHandler(k *services.Kernel) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := envIDFromPath(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var request PermRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		kernelMutex.Lock()
		defer kernelMutex.Unlock()
		err = k.ChangePerm(id, request.VA, memoriaModels.Perm(request.Perm))
		switch {
		case errors.Is(err, models.ErrBadEnv):
			http.Error(w, err.Error(), http.StatusNotFound)
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

// AddressSpaceOf adapta el kernel a la búsqueda que usan los handlers de memoria.
func AddressSpaceOf(k *services.Kernel) func(id int32) (*memoriaModels.AddressSpace, bool) {
	return func(id int32) (*memoriaModels.AddressSpace, bool) {
		kernelMutex.Lock()
		defer kernelMutex.Unlock()
		return k.AddressSpaceOf(id)
	}
}

func envIDFromPath(r *http.Request) (models.EnvID, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 0, 32)
	if err != nil {
		return 0, errors.Wrapf(models.ErrBadEnv, "id %q", r.PathValue("id"))
	}
	return models.EnvID(id), nil
}
