package services

import (
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

const uxStackBottom = memoriaModels.UXStackTop - memoriaModels.PageSize

// PageFault entrega un fallo de página del proceso actual a su upcall de usuario. El UTrapframe se
// escribe en la pila de excepciones (debajo del frame actual, con 4 bytes de separación, si el fallo
// ocurrió mientras ya se atendía otro). Al volver del upcall se restaura el contexto del momento del
// fallo para que el acceso se reintente.
//
// Si el proceso no tiene upcall, no tiene una pila de excepciones escribible o la pila se desborda,
// el proceso se termina con un *FatalError.
func (k *Kernel) PageFault(va uintptr, errCode uint32) {
	e := k.curenv
	if e == nil {
		panic(models.Fatalf(0, "fallo de página en va %08x sin proceso en ejecución", va))
	}

	k.log.Debugf("## (%08x) Fallo de página - va: %08x - err: %x - eip: %d", e.ID, va, errCode, e.Tf.EIP)

	if e.PgfaultUpcall == nil {
		panic(models.Fatalf(e.ID, "fallo de página sin upcall registrado - va %08x ip %d", va, e.Tf.EIP))
	}

	stack, ok := e.AddressSpace.Lookup(uxStackBottom)
	if !ok || !stack.Perm.Has(memoriaModels.PermUser|memoriaModels.PermWrite|memoriaModels.PermPresent) {
		panic(models.Fatalf(e.ID, "la pila de excepciones no está mapeada con escritura"))
	}

	utf := models.UTrapframe{
		FaultVA: uint32(va),
		Err:     errCode,
		Regs:    e.Tf.Regs,
		EIP:     e.Tf.EIP,
		EFlags:  e.Tf.EFlags,
		ESP:     e.Tf.ESP,
	}

	esp := memoriaModels.UXStackTop
	if trapESP := uintptr(e.Tf.ESP); trapESP >= uxStackBottom && trapESP < memoriaModels.UXStackTop {
		// fallo recursivo: dejamos una palabra libre entre frames
		esp = trapESP - 4
	}
	if esp < uxStackBottom+models.UTrapframeSize {
		panic(models.Fatalf(e.ID, "desborde de la pila de excepciones - va %08x", va))
	}
	esp -= models.UTrapframeSize

	offset := esp - uxStackBottom
	copy(stack.Frame.Data[offset:], utf.Bytes())

	saved := e.Tf
	e.Tf.ESP = uint32(esp)
	e.PgfaultUpcall(&utf)
	e.Tf = saved
}
