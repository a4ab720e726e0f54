package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/fs/services"
	ioModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/models"
	ioServices "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/io/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/config"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/utils/log"
)

const (
	ConfigPath = "fs/configs/fs.toml"
	LogPath    = "./logs/fs.log"
)

func main() {
	app := &cli.App{
		Name:  "fs",
		Usage: "caché de bloques mapeada en memoria virtual sobre un disco simulado",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: ConfigPath, Usage: "archivo de configuración (.toml o .json)"},
			&cli.StringFlag{Name: "log", Value: LogPath, Usage: "archivo de log"},
		},
		Before: func(c *cli.Context) error {
			var cfg models.Config
			config.InitConfig(c.String("config"), &cfg)
			models.FsConfig = &cfg
			log.InitLogger(c.String("log"), cfg.LogLevel)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "format",
				Usage: "crea el disco si hace falta y escribe superbloque y bitmap",
				Action: func(c *cli.Context) error {
					disk, err := openDisk(true)
					if err != nil {
						return err
					}
					defer disk.Close()

					super, err := services.Format(disk, uint32(models.FsConfig.NBlocks))
					if err != nil {
						return err
					}
					fmt.Printf("disco formateado: %d bloques, bitmap en %d\n", super.NBlocks, super.BitmapStart)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "verifica la caché, el superbloque y el bitmap",
				Action: func(c *cli.Context) error {
					return withCache(func(bc *services.BlockCache) error {
						free := 0
						for b := uint32(0); b < bc.Super().NBlocks; b++ {
							if bc.BlockIsFree(b) {
								free++
							}
						}
						fmt.Printf("superbloque ok: %d bloques, %d libres\n", bc.Super().NBlocks, free)
						return nil
					})
				},
			},
			{
				Name:      "cat-block",
				Usage:     "muestra el contenido de un bloque",
				ArgsUsage: "<bloque>",
				Action: func(c *cli.Context) error {
					blockno, err := blockArg(c, 0)
					if err != nil {
						return err
					}
					return withCache(func(bc *services.BlockCache) error {
						fmt.Print(hex.Dump(bc.ReadBlock(blockno)))
						return nil
					})
				},
			},
			{
				Name:      "write-block",
				Usage:     "escribe texto al principio de un bloque; sin número de bloque asigna uno libre",
				ArgsUsage: "[<bloque>] <texto>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() == 0 {
						return errors.New("falta el texto a escribir")
					}
					return withCache(func(bc *services.BlockCache) error {
						text := c.Args().Get(c.Args().Len() - 1)
						var blockno uint32
						var err error
						if c.Args().Len() >= 2 {
							blockno, err = blockArg(c, 0)
						} else {
							blockno, err = bc.AllocBlock()
						}
						if err != nil {
							return err
						}
						if err := bc.WriteBlock(blockno, []byte(text)); err != nil {
							return err
						}
						fmt.Printf("bloque %d escrito\n", blockno)
						return nil
					})
				},
			},
			{
				Name:      "free-block",
				Usage:     "marca un bloque como libre",
				ArgsUsage: "<bloque>",
				Action: func(c *cli.Context) error {
					blockno, err := blockArg(c, 0)
					if err != nil {
						return err
					}
					return withCache(func(bc *services.BlockCache) error {
						bc.FreeBlock(blockno)
						return nil
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func openDisk(create bool) (ioServices.Disk, error) {
	cfg := models.FsConfig.Disk
	if create && (cfg.Backend == ioModels.BackendFile || cfg.Backend == "") {
		if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
			if err := ioServices.CreateFileDisk(cfg.Path, uint32(cfg.Sectors)); err != nil {
				return nil, err
			}
		}
	}
	return ioServices.OpenDisk(cfg)
}

func withCache(fn func(bc *services.BlockCache) error) error {
	disk, err := openDisk(false)
	if err != nil {
		return err
	}
	defer disk.Close()
	return services.Session(*models.FsConfig, disk, fn)
}

func blockArg(c *cli.Context, i int) (uint32, error) {
	value, err := strconv.ParseUint(c.Args().Get(i), 0, 32)
	if err != nil {
		return 0, errors.Errorf("número de bloque inválido %q", c.Args().Get(i))
	}
	return uint32(value), nil
}
