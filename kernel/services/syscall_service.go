package services

import (
	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

// GetEnvID devuelve el id del proceso actual.
func (k *Kernel) GetEnvID() models.EnvID {
	if k.curenv == nil {
		return 0
	}
	return k.curenv.ID
}

// Exofork crea un hijo sin memoria y no ejecutable. Su trapframe es copia del del padre con EAX en 0,
// así que cuando se ejecute por primera vez ve a la syscall devolver 0.
func (k *Kernel) Exofork() (models.EnvID, error) {
	parent := k.curenv
	if parent == nil {
		return 0, errors.Wrap(models.ErrBadEnv, "exofork sin proceso en ejecución")
	}

	child, err := k.envAlloc(parent.ID)
	if err != nil {
		return 0, err
	}
	child.Tf = parent.Tf
	child.Tf.Regs.EAX = 0
	child.Program = parent.Program
	return child.ID, nil
}

// EnvSetStatus solo admite RUNNABLE o NOT_RUNNABLE.
func (k *Kernel) EnvSetStatus(id models.EnvID, status models.EnvStatus) error {
	if status != models.EnvRunnable && status != models.EnvNotRunnable {
		return errors.Wrapf(models.ErrInval, "estado %s", status)
	}
	e, err := k.envid2env(id, true)
	if err != nil {
		return err
	}
	k.setStatus(e, status)
	return nil
}

func (k *Kernel) EnvSetPgfaultUpcall(id models.EnvID, upcall models.Upcall) error {
	e, err := k.envid2env(id, true)
	if err != nil {
		return err
	}
	e.PgfaultUpcall = upcall
	return nil
}

func (k *Kernel) EnvDestroy(id models.EnvID) error {
	e, err := k.envid2env(id, true)
	if err != nil {
		return err
	}
	k.destroy(e)
	return nil
}

// PageAlloc mapea una página nueva, en cero, en va. Si ya había una página ahí se desmapea.
func (k *Kernel) PageAlloc(id models.EnvID, va uintptr, perm memoriaModels.Perm) error {
	e, err := k.envid2env(id, true)
	if err != nil {
		return err
	}
	if err := checkVA(va); err != nil {
		return err
	}
	if err := checkPerm(perm); err != nil {
		return err
	}

	frame, err := k.memory.Alloc()
	if err != nil {
		return err
	}
	k.memory.Insert(e.AddressSpace, va, frame, perm)
	k.invalidate(e, va)
	return nil
}

// PageMap mapea en dstva de dstenv el mismo frame que srcva de srcenv. No se puede dar escritura sobre
// una página de origen que no la tiene.
func (k *Kernel) PageMap(srcID models.EnvID, srcva uintptr, dstID models.EnvID, dstva uintptr, perm memoriaModels.Perm) error {
	src, err := k.envid2env(srcID, true)
	if err != nil {
		return err
	}
	dst, err := k.envid2env(dstID, true)
	if err != nil {
		return err
	}
	if err := checkVA(srcva); err != nil {
		return err
	}
	if err := checkVA(dstva); err != nil {
		return err
	}
	if err := checkPerm(perm); err != nil {
		return err
	}

	entry, ok := src.AddressSpace.Lookup(srcva)
	if !ok {
		return errors.Wrapf(models.ErrInval, "la página %#x del proceso %08x no está mapeada", srcva, src.ID)
	}
	if perm&memoriaModels.PermWrite != 0 && !entry.Perm.Has(memoriaModels.PermWrite) {
		return errors.Wrapf(models.ErrInval, "la página %#x es de solo lectura", srcva)
	}

	k.memory.Insert(dst.AddressSpace, dstva, entry.Frame, perm)
	k.invalidate(dst, dstva)
	return nil
}

// PageUnmap no falla si va no estaba mapeada.
func (k *Kernel) PageUnmap(id models.EnvID, va uintptr) error {
	e, err := k.envid2env(id, true)
	if err != nil {
		return err
	}
	if err := checkVA(va); err != nil {
		return err
	}
	if k.memory.Remove(e.AddressSpace, va) {
		k.invalidate(e, va)
	}
	return nil
}

// PageLookup es la vista uvpt del proceso actual.
func (k *Kernel) PageLookup(va uintptr) (models.PTE, bool) {
	if k.curenv == nil {
		return models.PTE{}, false
	}
	entry, ok := k.curenv.AddressSpace.Lookup(va)
	if !ok {
		return models.PTE{}, false
	}
	return models.PTE{Frame: entry.Frame.Number, Perm: entry.Perm}, true
}

// PageDirLookup es la vista uvpd: indica si hay alguna página presente en los 4 MiB que contienen va.
func (k *Kernel) PageDirLookup(va uintptr) bool {
	return k.curenv != nil && k.curenv.AddressSpace.DirPresent(va)
}

// Envs expone la tabla de procesos. Es de solo lectura para el código de usuario.
func (k *Kernel) Envs() []*models.Env {
	return k.envs
}

func checkVA(va uintptr) error {
	if va >= memoriaModels.UTop || va != memoriaModels.RoundDown(va) {
		return errors.Wrapf(models.ErrInval, "dirección %#x", va)
	}
	return nil
}

func checkPerm(perm memoriaModels.Perm) error {
	if !perm.Has(memoriaModels.PermUser|memoriaModels.PermPresent) || perm&^memoriaModels.PermSyscall != 0 {
		return errors.Wrapf(models.ErrInval, "permisos %s", perm)
	}
	return nil
}
