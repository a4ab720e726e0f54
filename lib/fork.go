package lib

import (
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

const (
	cowPerm = memoriaModels.PermCOW | memoriaModels.PermUser | memoriaModels.PermPresent
	rwPerm  = memoriaModels.PermUser | memoriaModels.PermWrite | memoriaModels.PermPresent

	uxStackBottom = memoriaModels.UXStackTop - memoriaModels.PageSize
)

// pgfault resuelve una escritura sobre una página copy-on-write: copia la página a un frame nuevo y lo
// mapea en su lugar con escritura. Cualquier otro fallo es un error fatal.
func (l *Lib) pgfault(utf *models.UTrapframe) {
	addr := uintptr(utf.FaultVA)
	if !utf.IsWrite() {
		l.Panicf("pgfault: no es una escritura - va %08x err %x", addr, utf.Err)
	}
	pte, ok := l.sys.PageLookup(addr)
	if !l.sys.PageDirLookup(addr) || !ok || !pte.Has(memoriaModels.PermCOW) {
		l.Panicf("pgfault: la página %08x no es copy-on-write", addr)
	}

	if err := l.sys.PageAlloc(0, memoriaModels.PFTemp, rwPerm); err != nil {
		l.Panicf("pgfault: sys_page_alloc: %v", err)
	}
	addr = memoriaModels.RoundDown(addr)
	l.mem.Write(memoriaModels.PFTemp, l.mem.Read(addr, memoriaModels.PageSize))
	if err := l.sys.PageMap(0, memoriaModels.PFTemp, 0, addr, rwPerm); err != nil {
		l.Panicf("pgfault: sys_page_map: %v", err)
	}
	if err := l.sys.PageUnmap(0, memoriaModels.PFTemp); err != nil {
		l.Panicf("pgfault: sys_page_unmap: %v", err)
	}
}

// duppage mapea la página va en el hijo. Las páginas escribibles o ya copy-on-write (salvo las marcadas
// Share) quedan copy-on-write en los dos procesos; primero en el hijo y después en el padre.
func (l *Lib) duppage(child models.EnvID, va uintptr, pte models.PTE) {
	if (pte.Has(memoriaModels.PermWrite) || pte.Has(memoriaModels.PermCOW)) && !pte.Has(memoriaModels.PermShare) {
		if err := l.sys.PageMap(0, va, child, va, cowPerm); err != nil {
			l.Panicf("duppage: sys_page_map(%08x) en el hijo: %v", va, err)
		}
		if err := l.sys.PageMap(0, va, 0, va, cowPerm); err != nil {
			l.Panicf("duppage: sys_page_map(%08x) en el padre: %v", va, err)
		}
		return
	}

	if err := l.sys.PageMap(0, va, child, va, pte.Perm&memoriaModels.PermSyscall); err != nil {
		l.Panicf("duppage: sys_page_map(%08x): %v", va, err)
	}
}

// sduppage comparte la página con el hijo tal cual. Las que ya son copy-on-write siguen siéndolo, porque
// sin el bit de escritura el hijo no podría escribirlas.
func (l *Lib) sduppage(child models.EnvID, va uintptr, pte models.PTE) {
	if pte.Has(memoriaModels.PermCOW) {
		l.duppage(child, va, pte)
		return
	}
	if err := l.sys.PageMap(0, va, child, va, pte.Perm&memoriaModels.PermSyscall); err != nil {
		l.Panicf("sduppage: sys_page_map(%08x): %v", va, err)
	}
}

// Fork duplica el proceso con copy-on-write. En el padre devuelve el id del hijo; el hijo empieza a
// ejecutar con 0 en EAX y obtiene su estado de la biblioteca con ForkChild. Cualquier error es fatal.
func (l *Lib) Fork() models.EnvID {
	return l.fork(false)
}

// SFork es fork superficial: solo la pila (el bloque contiguo de páginas presentes más alto) se duplica
// con copy-on-write, el resto de la memoria queda compartida.
func (l *Lib) SFork() models.EnvID {
	return l.fork(true)
}

func (l *Lib) fork(shallow bool) models.EnvID {
	l.SetPgfaultHandler(l.pgfault)

	child, err := l.sys.Exofork()
	if err != nil {
		l.Panicf("fork: sys_exofork: %v", err)
	}

	pages := l.presentPages()
	if shallow {
		stack := stackRun(pages)
		for i, va := range pages {
			pte, _ := l.sys.PageLookup(va)
			if i < stack {
				l.sduppage(child, va, pte)
			} else {
				l.duppage(child, va, pte)
			}
		}
	} else {
		for _, va := range pages {
			pte, _ := l.sys.PageLookup(va)
			l.duppage(child, va, pte)
		}
	}

	// la pila de excepciones nunca es copy-on-write: un fallo dentro del manejador no puede fallar
	if err := l.sys.PageAlloc(child, uxStackBottom, rwPerm); err != nil {
		l.Panicf("fork: pila de excepciones del hijo: %v", err)
	}

	state := l.clone()
	l.children[child] = state
	if err := l.sys.EnvSetPgfaultUpcall(child, state.upcall); err != nil {
		l.Panicf("fork: sys_env_set_pgfault_upcall: %v", err)
	}
	if err := l.sys.EnvSetStatus(child, models.EnvRunnable); err != nil {
		l.Panicf("fork: sys_env_set_status: %v", err)
	}

	if shallow {
		l.log.Infof("## (%08x) SFORK - Hijo: %08x - Páginas: %d", l.sys.GetEnvID(), child, len(pages))
	} else {
		l.log.Infof("## (%08x) FORK - Hijo: %08x - Páginas: %d", l.sys.GetEnvID(), child, len(pages))
	}
	return child
}

// presentPages recorre uvpd/uvpt y devuelve en orden ascendente las páginas presentes debajo de la pila
// de excepciones.
func (l *Lib) presentPages() []uintptr {
	var pages []uintptr
	for dir := uintptr(0); dir < uxStackBottom; dir += memoriaModels.PtSize {
		if !l.sys.PageDirLookup(dir) {
			continue
		}
		for va := dir; va < dir+memoriaModels.PtSize && va < uxStackBottom; va += memoriaModels.PageSize {
			if pte, ok := l.sys.PageLookup(va); ok && pte.Has(memoriaModels.PermPresent) {
				pages = append(pages, va)
			}
		}
	}
	return pages
}

// stackRun devuelve el índice donde empieza el bloque contiguo más alto de pages (ascendentes).
func stackRun(pages []uintptr) int {
	if len(pages) == 0 {
		return 0
	}
	i := len(pages) - 1
	for i > 0 && pages[i-1] == pages[i]-memoriaModels.PageSize {
		i--
	}
	return i
}
