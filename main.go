package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lepinkainen/imgmin/cmd"
	"github.com/lepinkainen/imgmin/config"
	"github.com/lepinkainen/imgmin/logging"
	"github.com/lepinkainen/imgmin/types"
)

var Version = "dev"

type CLI struct {
	Config      string           `help:"Path to the config file" env:"IMGMIN_CONFIG" default:"${config_file}"`
	VersionFlag kong.VersionFlag `name:"version" help:"Print version and exit"`

	Compress cmd.CompressCmd `cmd:"" default:"withargs" help:"Compress images (interactive on a terminal)"`
	Serve    cmd.ServeCmd    `cmd:"" help:"Serve the compressor over HTTP"`
	Check    cmd.CheckCmd    `cmd:"" help:"Check that the configured compressor is usable"`
	Compare  cmd.CompareCmd  `cmd:"" help:"Compare images by perceptual hash"`
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("imgmin"),
		kong.Description("Compress PNG and JPG images with an external compressor."),
		kong.UsageOnError(),
		kong.Vars{
			"version":     Version,
			"config_file": config.DefaultFile,
		},
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	// .env values become defaults for env-backed flags
	_ = godotenv.Load()

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := config.Load(cli.Config)
	ctx.FatalIfErrorf(err)

	logger, closer, err := logging.Open(cfg.Logger)
	ctx.FatalIfErrorf(err)
	defer closer.Close()

	appCtx := &types.AppContext{Version: Version, Config: cfg, Logger: logger}
	err = ctx.Run(appCtx)
	_ = logger.Sync()
	ctx.FatalIfErrorf(err)
}
