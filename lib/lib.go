// Package lib es la biblioteca de usuario: corre dentro de un proceso y habla con el kernel solo a
// través de syscalls. Implementa el manejo de fallos de página a nivel usuario y fork con copy-on-write.
package lib

import (
	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Syscalls es la interfaz del kernel que ve un proceso de usuario.
type Syscalls interface {
	GetEnvID() models.EnvID
	Envs() []*models.Env
	Exofork() (models.EnvID, error)
	EnvSetStatus(id models.EnvID, status models.EnvStatus) error
	EnvSetPgfaultUpcall(id models.EnvID, upcall models.Upcall) error
	PageAlloc(id models.EnvID, va uintptr, perm memoriaModels.Perm) error
	PageMap(srcID models.EnvID, srcva uintptr, dstID models.EnvID, dstva uintptr, perm memoriaModels.Perm) error
	PageUnmap(id models.EnvID, va uintptr) error
	PageLookup(va uintptr) (models.PTE, bool)
	PageDirLookup(va uintptr) bool
}

// Memory es el acceso a memoria virtual del proceso (pasa por la MMU).
type Memory interface {
	Read(va uintptr, n int) []byte
	Write(va uintptr, data []byte)
}

// Lib es el estado de la biblioteca dentro de un proceso. Cada proceso tiene el suyo: un hijo de fork
// recibe una copia del estado del padre en el momento del fork.
type Lib struct {
	sys Syscalls
	mem Memory

	thisenv *models.Env

	upcallInstalled bool
	regions         []faultRegion
	// hijos creados por fork que todavía no se ejecutaron
	children map[models.EnvID]*Lib

	log *logrus.Entry
}

// New es el equivalente a libmain: debe llamarse ya ejecutando como el proceso.
func New(sys Syscalls, mem Memory) *Lib {
	l := &Lib{
		sys:      sys,
		mem:      mem,
		children: make(map[models.EnvID]*Lib),
		log:      log.Module("lib"),
	}
	l.thisenv = sys.Envs()[models.ENVX(sys.GetEnvID())]
	return l
}

// ThisEnv es la entrada de la tabla de procesos del proceso dueño de la biblioteca.
func (l *Lib) ThisEnv() *models.Env {
	return l.thisenv
}

// Panicf termina el proceso actual con un diagnóstico. No vuelve.
func (l *Lib) Panicf(format string, args ...interface{}) {
	panic(models.Fatalf(l.sys.GetEnvID(), format, args...))
}

// ForkChild es la mitad del fork que corre en el hijo: devuelve el estado de la biblioteca copiado en el
// fork, con thisenv apuntando a la entrada del hijo. Se llama una única vez por hijo.
func (l *Lib) ForkChild(id models.EnvID) (*Lib, bool) {
	child, ok := l.children[id]
	if !ok {
		return nil, false
	}
	delete(l.children, id)
	child.thisenv = l.sys.Envs()[models.ENVX(id)]
	return child, true
}

// PendingChildren indica cuántos hijos todavía no reclamaron su estado con ForkChild.
func (l *Lib) PendingChildren() int {
	return len(l.children)
}

func (l *Lib) clone() *Lib {
	regions := make([]faultRegion, len(l.regions))
	copy(regions, l.regions)
	return &Lib{
		sys:             l.sys,
		mem:             l.mem,
		upcallInstalled: l.upcallInstalled,
		regions:         regions,
		children:        make(map[models.EnvID]*Lib),
		log:             l.log,
	}
}
