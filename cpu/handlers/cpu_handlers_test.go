package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/services"
	kernelServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/services"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

func TestHandlersAfterExecution(t *testing.T) {
	k, err := kernelServices.NewKernel(32 * memoriaModels.PageSize)
	require.NoError(t, err)
	mmu := services.NewMMU(k, 2, "FIFO")
	k.AddInvalidator(mmu)
	cpu := services.NewCPU(k, mmu, models.Config{Quantum: 5})

	e, err := k.EnvCreate([]string{
		"ALLOC 0x800000 0x7",
		"WRITE 0x800000 hola",
		"READ 0x800000 4",
		"EXIT",
	})
	require.NoError(t, err)
	cpu.ExecuteProcess()

	rec := httptest.NewRecorder()
	ExecutionHandler(cpu)(rec, httptest.NewRequest(http.MethodGet, "/cpu/ejecucion", nil))
	var execution ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execution))
	assert.Equal(t, 4, execution.Executed)
	assert.Equal(t, []models.ReadRecord{{EnvID: e.ID, VA: 0x800000, Value: "hola"}}, execution.Reads)

	rec = httptest.NewRecorder()
	TLBStatusHandler(mmu)(rec, httptest.NewRequest(http.MethodGet, "/cpu/tlb", nil))
	var status TLBStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Positive(t, status.Hits+status.Misses)
	// el proceso terminó: su TLB quedó vacía
	assert.Zero(t, status.Entries)
}

func TestExecutionHandler_NoReads(t *testing.T) {
	k, err := kernelServices.NewKernel(8 * memoriaModels.PageSize)
	require.NoError(t, err)
	cpu := services.NewCPU(k, services.NewMMU(k, 0, "FIFO"), models.Config{Quantum: 1})

	rec := httptest.NewRecorder()
	ExecutionHandler(cpu)(rec, httptest.NewRequest(http.MethodGet, "/cpu/ejecucion", nil))
	assert.JSONEq(t, `{"executed": 0, "reads": []}`, rec.Body.String())
}
