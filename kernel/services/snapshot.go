package services

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	memoriaServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/services"
)

type EnvSnapshot struct {
	ID       models.EnvID              `json:"id"`
	ParentID models.EnvID              `json:"parent_id"`
	Status   string                    `json:"status"`
	Runs     int                       `json:"runs"`
	EAX      uint32                    `json:"eax"`
	Pages    []memoriaServices.Mapping `json:"pages"`
}

type Snapshot struct {
	TotalFrames int           `json:"total_frames"`
	FreeFrames  int           `json:"free_frames"`
	FreeEnvs    int           `json:"free_envs"`
	Envs        []EnvSnapshot `json:"envs"`
}

// Snapshot toma una foto de los procesos vivos y sus mapeos, para inspección.
func (k *Kernel) Snapshot() Snapshot {
	alive := lo.Filter(k.envs, func(e *models.Env, _ int) bool {
		return e.Status != models.EnvFree
	})

	return Snapshot{
		TotalFrames: k.memory.TotalFrames(),
		FreeFrames:  k.memory.FreeCount(),
		FreeEnvs:    k.freeEnvs.Size(),
		Envs: lo.Map(alive, func(e *models.Env, _ int) EnvSnapshot {
			return EnvSnapshot{
				ID:       e.ID,
				ParentID: e.ParentID,
				Status:   e.Status.String(),
				Runs:     e.Runs,
				EAX:      e.Tf.Regs.EAX,
				Pages:    memoriaServices.ShowMappings(e.AddressSpace, 0, memoriaModels.UTop-1),
			}
		}),
	}
}

// FindEnv busca un proceso vivo por id sin chequear permisos. Lo usan las herramientas de inspección.
func (k *Kernel) FindEnv(id models.EnvID) (*models.Env, bool) {
	return lo.Find(k.envs, func(e *models.Env) bool {
		return e.Status != models.EnvFree && e.ID == id
	})
}

// AddressSpaceOf devuelve el espacio de direcciones de un proceso vivo, para los volcados de memoria.
func (k *Kernel) AddressSpaceOf(id int32) (*memoriaModels.AddressSpace, bool) {
	e, ok := k.FindEnv(models.EnvID(id))
	if !ok {
		return nil, false
	}
	return e.AddressSpace, true
}

// ChangePerm cambia los permisos de una página de cualquier proceso vivo, como el chperm del monitor.
// No valida perm: es una herramienta de depuración.
func (k *Kernel) ChangePerm(id models.EnvID, va uintptr, perm memoriaModels.Perm) error {
	e, ok := k.FindEnv(id)
	if !ok {
		return errors.Wrapf(models.ErrBadEnv, "proceso %08x", id)
	}
	if err := memoriaServices.ChangePerm(e.AddressSpace, memoriaModels.RoundDown(va), perm); err != nil {
		return err
	}
	k.invalidate(e, memoriaModels.RoundDown(va))
	k.log.Infof("## (%08x) Permisos de %08x cambiados a %s", id, va, (perm | memoriaModels.PermPresent).String())
	return nil
}
