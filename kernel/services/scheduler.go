package services

import (
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
)

// SchedYield elige el próximo proceso RUNNABLE en round robin, empezando por el siguiente al último que
// se eligió. Devuelve nil si no queda ninguno.
func (k *Kernel) SchedYield() *models.Env {
	for i := 1; i <= models.NEnv; i++ {
		idx := (k.lastRun + i) % models.NEnv
		if e := k.envs[idx]; e.Status == models.EnvRunnable {
			k.lastRun = idx
			k.log.Debugf("## (%08x) Seleccionado para ejecutar", e.ID)
			return e
		}
	}
	return nil
}
