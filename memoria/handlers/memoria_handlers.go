package handlers

import (
	"net/http"
	"strconv"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/web/server"
)

// AddressSpaceLookup devuelve el espacio de direcciones de un proceso vivo.
type AddressSpaceLookup func(id int32) (*models.AddressSpace, bool)

type MemoryStatus struct {
	TotalFrames int `json:"total_frames"`
	FreeFrames  int `json:"free_frames"`
	PageSize    int `json:"page_size"`
}

func MemoryStatusHandler(pm *services.PhysicalMemory) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		server.SendJsonResponse(w, MemoryStatus{
			TotalFrames: pm.TotalFrames(),
			FreeFrames:  pm.FreeCount(),
			PageSize:    models.PageSize,
		})
	}
}

// FramesHandler vuelca los frames entre first y last (query params, ambos inclusive).
func FramesHandler(pm *services.PhysicalMemory) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		first, err1 := strconv.Atoi(r.URL.Query().Get("first"))
		last, err2 := strconv.Atoi(r.URL.Query().Get("last"))
		if err1 != nil || err2 != nil {
			http.Error(w, "first y last deben ser números de frame", http.StatusBadRequest)
			return
		}

		dump, err := pm.DumpPhysical(first, last)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		server.SendTextResponse(w, dump)
	}
}

// DumpVirtualHandler vuelca [from, to) del proceso {id} visto desde su espacio de direcciones.
func DumpVirtualHandler(lookup AddressSpaceLookup) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 0, 32)
		if err != nil {
			http.Error(w, "id de proceso inválido", http.StatusBadRequest)
			return
		}
		from, err1 := strconv.ParseUint(r.URL.Query().Get("from"), 0, 32)
		to, err2 := strconv.ParseUint(r.URL.Query().Get("to"), 0, 32)
		if err1 != nil || err2 != nil || from >= to {
			http.Error(w, "rango inválido", http.StatusBadRequest)
			return
		}

		as, ok := lookup(int32(id))
		if !ok {
			http.Error(w, "proceso inexistente", http.StatusNotFound)
			return
		}

		log.Module("memoria").Debugf("## (%08x) Volcado virtual %#x-%#x", id, from, to)
		server.SendTextResponse(w, services.DumpVirtual(as, uintptr(from), uintptr(to)))
	}
}
