package lib

import (
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

// PgfaultHandler resuelve un fallo de página o termina el proceso con Panicf.
type PgfaultHandler func(utf *models.UTrapframe)

type faultRegion struct {
	lo, hi  uintptr
	handler PgfaultHandler
}

func (r faultRegion) contains(va uintptr) bool {
	return va >= r.lo && va < r.hi
}

// SetPgfaultHandler instala h como manejador de fallos de todo el espacio de usuario. La primera vez
// también reserva la pila de excepciones y registra el upcall en el kernel.
func (l *Lib) SetPgfaultHandler(h PgfaultHandler) {
	l.SetPgfaultRegionHandler(0, memoriaModels.UTop, h)
}

// SetPgfaultRegionHandler hace que los fallos en [lo, hi) los atienda h. Si varias regiones contienen la
// dirección gana la más chica; reinstalar el mismo rango reemplaza el manejador.
func (l *Lib) SetPgfaultRegionHandler(lo, hi uintptr, h PgfaultHandler) {
	if !l.upcallInstalled {
		err := l.sys.PageAlloc(0, memoriaModels.UXStackTop-memoriaModels.PageSize,
			memoriaModels.PermUser|memoriaModels.PermWrite|memoriaModels.PermPresent)
		if err != nil {
			l.Panicf("set_pgfault_handler: no se pudo reservar la pila de excepciones: %v", err)
		}
		if err := l.sys.EnvSetPgfaultUpcall(0, l.upcall); err != nil {
			l.Panicf("set_pgfault_handler: %v", err)
		}
		l.upcallInstalled = true
	}

	for i, r := range l.regions {
		if r.lo == lo && r.hi == hi {
			l.regions[i].handler = h
			return
		}
	}
	l.regions = append(l.regions, faultRegion{lo: lo, hi: hi, handler: h})
}

// upcall es el punto de entrada que ve el kernel: elige el manejador según la dirección del fallo.
func (l *Lib) upcall(utf *models.UTrapframe) {
	va := uintptr(utf.FaultVA)

	var match *faultRegion
	for i := range l.regions {
		r := &l.regions[i]
		if r.contains(va) && (match == nil || r.hi-r.lo < match.hi-match.lo) {
			match = r
		}
	}
	if match == nil {
		l.Panicf("fallo de página sin manejador - va %08x err %x", va, utf.Err)
	}
	match.handler(utf)
}
