package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	cpuHandler "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/handlers"
	cpuModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/models"
	cpuServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/cpu/services"
	kernelHandler "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/handlers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/services"
	memoryHandler "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/handlers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/config"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/web/client"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/web/handlers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/web/server"
)

const (
	ConfigPath = "kernel/configs/kernel.json"
	LogPath    = "./logs/kernel.log"
)

type machine struct {
	kernel *services.Kernel
	mmu    *cpuServices.MMU
	cpu    *cpuServices.CPU
}

func main() {
	app := &cli.App{
		Name:  "kernel",
		Usage: "exokernel simulado con fork copy-on-write a nivel usuario",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: ConfigPath, Usage: "archivo de configuración (.json o .toml)"},
			&cli.StringFlag{Name: "log", Value: LogPath, Usage: "archivo de log"},
		},
		Before: func(c *cli.Context) error {
			var cfg models.Config
			config.InitConfig(c.String("config"), &cfg)
			models.KernelConfig = &cfg
			log.InitLogger(c.String("log"), cfg.LogLevel)
			logrus.Debugf("Port Kernel: %d", models.KernelConfig.PortKernel)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "ejecuta un pseudocódigo hasta que no queden procesos",
				ArgsUsage: "[archivo_pseudocódigo]",
				Action: func(c *cli.Context) error {
					_, err := runProgram(c.Args().First())
					return err
				},
			},
			{
				Name:      "serve",
				Usage:     "ejecuta un pseudocódigo y deja el estado final disponible por HTTP",
				ArgsUsage: "[archivo_pseudocódigo]",
				Action: func(c *cli.Context) error {
					m, err := runProgram(c.Args().First())
					if err != nil {
						return err
					}
					return server.InitServer(models.KernelConfig.PortKernel, routes(m))
				},
			},
			{
				Name:  "envs",
				Usage: "consulta los procesos de un kernel levantado con serve",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ip", Value: "127.0.0.1"},
				},
				Action: func(c *cli.Context) error {
					return printEnvs(c.String("ip"), models.KernelConfig.PortKernel)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func boot() (*machine, error) {
	cfg := models.KernelConfig
	k, err := services.NewKernel(cfg.MemorySize)
	if err != nil {
		return nil, err
	}

	mmu := cpuServices.NewMMU(k, cfg.TlbEntries, cfg.TlbReplacement)
	k.AddInvalidator(mmu)
	cpu := cpuServices.NewCPU(k, mmu, cpuModels.Config{
		TlbEntries:      cfg.TlbEntries,
		TlbReplacement:  cfg.TlbReplacement,
		Quantum:         cfg.Quantum,
		MaxInstructions: cfg.MaxInstructions,
		DumpPath:        cfg.DumpPath,
	})
	return &machine{kernel: k, mmu: mmu, cpu: cpu}, nil
}

func runProgram(path string) (*machine, error) {
	if path == "" {
		return nil, errors.New("falta el parámetro [archivo_pseudocódigo]")
	}
	program, err := services.LoadProgram(path)
	if err != nil {
		return nil, err
	}

	m, err := boot()
	if err != nil {
		return nil, err
	}
	e, err := m.kernel.EnvCreate(program)
	if err != nil {
		return nil, err
	}
	logrus.Infof("## (%08x) Proceso inicial creado desde %s", e.ID, path)

	m.cpu.ExecuteProcess()

	for _, read := range m.cpu.Reads() {
		fmt.Printf("%08x  %08x  %q\n", read.EnvID, read.VA, read.Value)
	}
	stats := m.mmu.Stats()
	logrus.Infof("Instrucciones: %d - TLB hits: %d - TLB misses: %d - Frames libres: %d",
		m.cpu.Executed(), stats.Hits, stats.Misses, m.kernel.Memory().FreeCount())
	return m, nil
}

func routes(m *machine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", handlers.HandshakeHandler("Bienvenido al módulo Kernel"))
	mux.HandleFunc("GET /kernel/snapshot", kernelHandler.SnapshotHandler(m.kernel))
	mux.HandleFunc("GET /kernel/envs/{id}", kernelHandler.EnvHandler(m.kernel))
	mux.HandleFunc("POST /kernel/envs/{id}/perm", kernelHandler.ChangePermHandler(m.kernel))
	mux.HandleFunc("GET /memoria", memoryHandler.MemoryStatusHandler(m.kernel.Memory()))
	mux.HandleFunc("GET /memoria/frames", memoryHandler.FramesHandler(m.kernel.Memory()))
	mux.HandleFunc("GET /memoria/envs/{id}/dump", memoryHandler.DumpVirtualHandler(kernelHandler.AddressSpaceOf(m.kernel)))
	mux.HandleFunc("GET /cpu/tlb", cpuHandler.TLBStatusHandler(m.mmu))
	mux.HandleFunc("GET /cpu/ejecucion", cpuHandler.ExecutionHandler(m.cpu))
	return mux
}

func printEnvs(ip string, port int) error {
	response, err := client.DoRequest(port, ip, http.MethodGet, "kernel/snapshot")
	if err != nil {
		return err
	}
	defer response.Body.Close()

	var snapshot services.Snapshot
	if err := json.NewDecoder(response.Body).Decode(&snapshot); err != nil {
		return errors.Wrap(err, "respuesta inválida del kernel")
	}

	fmt.Printf("frames libres: %d/%d\n", snapshot.FreeFrames, snapshot.TotalFrames)
	for _, e := range snapshot.Envs {
		fmt.Printf("%08x  padre %08x  %-12s  corridas %d  páginas %d\n", e.ID, e.ParentID, e.Status, e.Runs, len(e.Pages))
		for _, page := range e.Pages {
			fmt.Printf("    %08x  frame %4d  %s  ref %d\n", page.VA, page.Frame, page.Perm, page.Ref)
		}
	}
	return nil
}
