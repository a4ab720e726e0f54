package services

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	memoriaServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/list"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// TLBInvalidator lo implementa quien cachee traducciones (la MMU de la CPU). El kernel lo avisa cada
// vez que cambia un mapeo.
type TLBInvalidator interface {
	Invalidate(id models.EnvID, va uintptr)
	FlushEnv(id models.EnvID)
}

// Kernel es el dueño de la memoria física y de la tabla de procesos. Todas las syscalls se ejecutan en
// nombre del proceso actual (curenv).
type Kernel struct {
	memory   *memoriaServices.PhysicalMemory
	envs     []*models.Env
	freeEnvs *list.ArrayList[int]
	curenv   *models.Env
	lastRun  int

	invalidators []TLBInvalidator
	log          *logrus.Entry
}

// NewKernel arma la tabla de procesos vacía sobre una memoria física de memorySize bytes.
func NewKernel(memorySize int) (*Kernel, error) {
	memory, err := memoriaServices.NewPhysicalMemory(memorySize)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		memory:   memory,
		envs:     make([]*models.Env, models.NEnv),
		freeEnvs: &list.ArrayList[int]{},
		lastRun:  -1,
		log:      log.Module("kernel"),
	}
	// envs[0] queda primero en la lista de libres
	for i := range k.envs {
		k.envs[i] = &models.Env{Status: models.EnvFree}
		k.freeEnvs.Add(i)
	}
	return k, nil
}

func (k *Kernel) Memory() *memoriaServices.PhysicalMemory {
	return k.memory
}

// AddInvalidator registra una TLB que debe enterarse de los cambios de mapeo.
func (k *Kernel) AddInvalidator(inv TLBInvalidator) {
	k.invalidators = append(k.invalidators, inv)
}

// CurEnv devuelve el proceso en ejecución, o nil si no hay ninguno.
func (k *Kernel) CurEnv() *models.Env {
	return k.curenv
}

// EnvCreate crea un proceso listo para ejecutar program. Lo usa el kernel para arrancar el primer
// proceso; los demás nacen con Exofork.
func (k *Kernel) EnvCreate(program []string) (*models.Env, error) {
	e, err := k.envAlloc(0)
	if err != nil {
		return nil, err
	}
	e.Program = program
	e.Tf.ESP = uint32(memoriaModels.UStackTop)
	k.setStatus(e, models.EnvRunnable)
	return e, nil
}

func (k *Kernel) envAlloc(parentID models.EnvID) (*models.Env, error) {
	idx, err := k.freeEnvs.Dequeue()
	if err != nil {
		return nil, models.ErrNoFreeEnv
	}
	e := k.envs[idx]

	generation := (e.ID + (1 << models.EnvGenShift)) &^ (models.NEnv - 1)
	if generation <= 0 {
		generation = 1 << models.EnvGenShift
	}

	*e = models.Env{
		ID:           generation | models.EnvID(idx),
		ParentID:     parentID,
		Status:       models.EnvNotRunnable,
		AddressSpace: memoriaModels.NewAddressSpace(),
	}
	k.log.Infof("## (%08x) Se crea el proceso - Padre: %08x", e.ID, parentID)
	return e, nil
}

// envid2env busca el proceso id. Con checkPerm exige que sea el actual o un hijo directo.
func (k *Kernel) envid2env(id models.EnvID, checkPerm bool) (*models.Env, error) {
	if id == 0 {
		if k.curenv == nil {
			return nil, errors.Wrap(models.ErrBadEnv, "no hay proceso en ejecución")
		}
		return k.curenv, nil
	}

	e := k.envs[models.ENVX(id)]
	if e.Status == models.EnvFree || e.ID != id {
		return nil, errors.Wrapf(models.ErrBadEnv, "proceso %08x", id)
	}
	if checkPerm && e != k.curenv && (k.curenv == nil || e.ParentID != k.curenv.ID) {
		return nil, errors.Wrapf(models.ErrBadEnv, "el proceso %08x no es el actual ni un hijo", id)
	}
	return e, nil
}

// destroy libera el espacio de direcciones y devuelve la entrada a la lista de libres.
func (k *Kernel) destroy(e *models.Env) {
	k.log.Infof("## (%08x) Finaliza el proceso - Ejecuciones: %d - Páginas: %d", e.ID, e.Runs, e.AddressSpace.Len())

	k.memory.Release(e.AddressSpace)
	for _, inv := range k.invalidators {
		inv.FlushEnv(e.ID)
	}

	k.setStatus(e, models.EnvFree)
	e.PgfaultUpcall = nil
	e.Program = nil
	k.freeEnvs.Push(models.ENVX(e.ID))

	if k.curenv == e {
		k.curenv = nil
	}
}

func (k *Kernel) setStatus(e *models.Env, status models.EnvStatus) {
	if e.Status == status {
		return
	}
	k.log.Debugf("## (%08x) Pasa del estado %s al estado %s", e.ID, e.Status, status)
	e.Status = status
}

func (k *Kernel) invalidate(e *models.Env, va uintptr) {
	for _, inv := range k.invalidators {
		inv.Invalidate(e.ID, va)
	}
}

// Run hace el cambio de contexto a envid y ejecuta fn como código de usuario de ese proceso. Si fn
// termina con un *FatalError (panic del proceso o fallo sin resolver), el proceso se destruye y Run
// devuelve el error. Cualquier otro panic se propaga.
func (k *Kernel) Run(envid models.EnvID, fn func()) (err error) {
	e, err := k.envid2env(envid, false)
	if err != nil {
		return err
	}
	if e.Status != models.EnvRunnable {
		return errors.Wrapf(models.ErrBadEnv, "el proceso %08x está en estado %s", e.ID, e.Status)
	}

	prev := k.curenv
	if prev != nil && prev.Status == models.EnvRunning {
		k.setStatus(prev, models.EnvRunnable)
	}
	k.curenv = e
	k.setStatus(e, models.EnvRunning)
	e.Runs++

	defer func() {
		if r := recover(); r != nil {
			fatal, ok := r.(*models.FatalError)
			if !ok {
				panic(r)
			}
			k.log.Errorf("## (%08x) %s", e.ID, fatal.Msg)
			if e.Status != models.EnvFree {
				k.destroy(e)
			}
			err = fatal
		}

		if e.Status == models.EnvRunning {
			k.setStatus(e, models.EnvRunnable)
		}
		k.curenv = prev
		if prev != nil && prev.Status == models.EnvRunnable {
			k.setStatus(prev, models.EnvRunning)
		}
	}()

	fn()
	return nil
}
