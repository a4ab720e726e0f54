package handlers

import (
	"net/http"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/web/server"
)

type TLBStatusResponse struct {
	models.TLBStats
	Entries int `json:"entries"`
}

type ExecutionResponse struct {
	Executed int                 `json:"executed"`
	Reads    []models.ReadRecord `json:"reads"`
}

func TLBStatusHandler(mmu *services.MMU) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		server.SendJsonResponse(w, TLBStatusResponse{TLBStats: mmu.Stats(), Entries: mmu.TLBSize()})
	}
}

// ExecutionHandler informa cuántas instrucciones se ejecutaron y qué leyó cada READ.
func ExecutionHandler(cpu *services.CPU) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		reads := cpu.Reads()
		if reads == nil {
			reads = []models.ReadRecord{}
		}
		server.SendJsonResponse(w, ExecutionResponse{Executed: cpu.Executed(), Reads: reads})
	}
}
