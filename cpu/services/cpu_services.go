package services

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/models"
	kernelModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/lib"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
	memoriaServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

// Kernel es lo que la CPU usa del kernel: las syscalls de usuario, la entrega de fallos y el
// planificador.
type Kernel interface {
	lib.Syscalls
	FaultingKernel
	EnvDestroy(id kernelModels.EnvID) error
	Run(envid kernelModels.EnvID, fn func()) error
	SchedYield() *kernelModels.Env
}

// CPU interpreta los programas de los procesos. Cada proceso tiene su propia instancia de la
// biblioteca de usuario.
type CPU struct {
	kernel Kernel
	mmu    *MMU
	config models.Config

	libs     map[kernelModels.EnvID]*lib.Lib
	reads    []models.ReadRecord
	executed int

	log *logrus.Entry
}

func NewCPU(kernel Kernel, mmu *MMU, config models.Config) *CPU {
	if config.Quantum <= 0 {
		config.Quantum = 1
	}
	return &CPU{
		kernel: kernel,
		mmu:    mmu,
		config: config,
		libs:   make(map[kernelModels.EnvID]*lib.Lib),
		log:    log.Module("cpu"),
	}
}

// ParseInstruction separa opcode y argumentos. El texto de WRITE es todo lo que sigue a la dirección.
func ParseInstruction(line string) (models.Instruction, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return models.Instruction{}, errors.Wrap(models.ErrInvalidInstruction, "línea vacía")
	}

	instruction := models.Instruction{Opcode: strings.ToUpper(fields[0])}
	if instruction.Opcode == models.OpWrite && len(fields) >= 3 {
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		text := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		instruction.Args = []string{fields[1], text}
		return instruction, nil
	}
	instruction.Args = fields[1:]
	return instruction, nil
}

// ExecuteProcess ejecuta los procesos en round robin, de a un quantum, hasta que no quede ninguno
// ejecutable o se alcance el límite de instrucciones.
func (c *CPU) ExecuteProcess() {
	for {
		if c.config.MaxInstructions > 0 && c.executed >= c.config.MaxInstructions {
			c.log.Warnf("Se alcanzó el límite de %d instrucciones", c.config.MaxInstructions)
			return
		}

		e := c.kernel.SchedYield()
		if e == nil {
			c.log.Info("No quedan procesos para ejecutar")
			return
		}

		id := e.ID
		err := c.kernel.Run(id, func() {
			c.runQuantum(e)
		})
		if err != nil {
			c.log.Warnf("## (%08x) Finaliza por error: %v", id, err)
		}
		c.forget(id)
	}
}

// runQuantum corre hasta Quantum instrucciones del proceso actual. Corta antes con YIELD, EXIT o si el
// proceso deja de estar en ejecución.
func (c *CPU) runQuantum(e *kernelModels.Env) {
	l := c.libFor(e)

	for i := 0; i < c.config.Quantum; i++ {
		if int(e.Tf.EIP) >= len(e.Program) {
			c.log.Infof("## (%08x) Fin del programa sin EXIT", e.ID)
			c.exit(l)
			return
		}
		if c.config.MaxInstructions > 0 && c.executed >= c.config.MaxInstructions {
			return
		}

		line := e.Program[e.Tf.EIP]
		instruction, err := ParseInstruction(line)
		if err != nil {
			l.Panicf("%v en la posición %d", err, e.Tf.EIP)
		}
		c.log.Infof("## (%08x) - Ejecutando: %s - %s", e.ID, instruction.Opcode, strings.Join(instruction.Args, " "))

		// EIP avanza antes de ejecutar: el hijo de un fork retoma después del FORK
		e.Tf.EIP++
		c.executed++

		if stop := c.DecodeAndExecute(e, l, instruction); stop {
			return
		}
	}
}

// DecodeAndExecute ejecuta una instrucción. Devuelve true si el proceso cede la CPU.
func (c *CPU) DecodeAndExecute(e *kernelModels.Env, l *lib.Lib, instruction models.Instruction) bool {
	args := instruction.Args
	switch instruction.Opcode {
	case models.OpNoop:
	case models.OpAlloc:
		va := c.parseNumber(l, instruction, 0)
		perm := memoriaModels.Perm(c.parseNumber(l, instruction, 1))
		if err := c.kernel.PageAlloc(0, va, perm); err != nil {
			l.Panicf("ALLOC %#x: %v", va, err)
		}
	case models.OpWrite:
		va := c.parseNumber(l, instruction, 0)
		c.requireArgs(l, instruction, 2)
		c.mmu.Write(va, []byte(args[1]))
	case models.OpRead:
		va := c.parseNumber(l, instruction, 0)
		n := c.parseNumber(l, instruction, 1)
		value := string(c.mmu.Read(va, int(n)))
		c.log.Infof("## (%08x) - Lectura - Dirección: %08x - Valor: %q", e.ID, va, value)
		c.reads = append(c.reads, models.ReadRecord{EnvID: e.ID, VA: va, Value: value})
	case models.OpFork:
		e.Tf.Regs.EAX = uint32(l.Fork())
	case models.OpSFork:
		e.Tf.Regs.EAX = uint32(l.SFork())
	case models.OpJz:
		if e.Tf.Regs.EAX == 0 {
			e.Tf.EIP = uint32(c.parseNumber(l, instruction, 0))
		}
	case models.OpJnz:
		if e.Tf.Regs.EAX != 0 {
			e.Tf.EIP = uint32(c.parseNumber(l, instruction, 0))
		}
	case models.OpGoto:
		e.Tf.EIP = uint32(c.parseNumber(l, instruction, 0))
	case models.OpYield:
		return true
	case models.OpDumpMemory:
		path, err := memoriaServices.DumpMemory(e.AddressSpace, c.config.DumpPath, int32(e.ID))
		if err != nil {
			l.Panicf("DUMP_MEMORY: %v", err)
		}
		c.log.Debugf("## (%08x) Dump generado en %s", e.ID, path)
	case models.OpExit:
		c.exit(l)
		return true
	default:
		l.Panicf("%v: %s", models.ErrInvalidInstruction, instruction.Opcode)
	}

	return e.Status != kernelModels.EnvRunning
}

func (c *CPU) exit(l *lib.Lib) {
	if err := c.kernel.EnvDestroy(0); err != nil {
		l.Panicf("EXIT: %v", err)
	}
}

// libFor devuelve la biblioteca del proceso. La primera vez que corre un hijo de fork recupera el estado
// que el padre le dejó; cualquier otro proceso arranca con una biblioteca nueva.
func (c *CPU) libFor(e *kernelModels.Env) *lib.Lib {
	if l, ok := c.libs[e.ID]; ok {
		return l
	}
	if parent, ok := c.libs[e.ParentID]; ok {
		if l, ok := parent.ForkChild(e.ID); ok {
			c.libs[e.ID] = l
			return l
		}
	}
	l := lib.New(c.kernel, c.mmu)
	c.libs[e.ID] = l
	return l
}

// forget descarta la biblioteca de un proceso que ya no existe, salvo que tenga hijos sin arrancar.
func (c *CPU) forget(id kernelModels.EnvID) {
	l, ok := c.libs[id]
	if !ok || l.PendingChildren() > 0 {
		return
	}
	for _, e := range c.kernel.Envs() {
		if e.ID == id && e.Status != kernelModels.EnvFree {
			return
		}
	}
	delete(c.libs, id)
}

func (c *CPU) requireArgs(l *lib.Lib, instruction models.Instruction, n int) {
	if len(instruction.Args) < n {
		l.Panicf("%v: %s espera %d argumentos", models.ErrInvalidInstruction, instruction.Opcode, n)
	}
}

func (c *CPU) parseNumber(l *lib.Lib, instruction models.Instruction, i int) uintptr {
	c.requireArgs(l, instruction, i+1)
	value, err := strconv.ParseUint(instruction.Args[i], 0, 32)
	if err != nil {
		l.Panicf("%v: %s %q", models.ErrInvalidAddress, instruction.Opcode, instruction.Args[i])
	}
	return uintptr(value)
}

// Reads devuelve los valores leídos por las instrucciones READ, en orden de ejecución.
func (c *CPU) Reads() []models.ReadRecord {
	return c.reads
}

func (c *CPU) Executed() int {
	return c.executed
}
