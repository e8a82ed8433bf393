package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lepinkainen/imgmin/imaging"
	"github.com/lepinkainen/imgmin/orchestrator"
	"github.com/lepinkainen/imgmin/types"
	"github.com/lepinkainen/imgmin/ui"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// CompressCmd compresses images through the configured compressor. On a
// terminal it opens the interactive UI, otherwise it works through the files
// one by one and saves every result.
type CompressCmd struct {
	Files       []string `arg:"" optional:"" name:"files" help:"Images or directories to compress" type:"path"`
	Mode        string   `help:"Compression mode (defaults to ui.default_mode)"`
	Progressive bool     `help:"Enable progressive output"`
	Output      string   `short:"o" help:"Directory for compressed files (defaults to ui.output_dir)" type:"path"`
	NoTUI       bool     `name:"no-tui" help:"Disable interactive TUI and print the run log"`
	DryRun      bool     `name:"dry-run" help:"Compress without saving results (plain mode only)"`
}

func (cmd *CompressCmd) Run(appCtx *types.AppContext) error {
	cfg := appCtx.GetConfig()

	files, err := imaging.ExpandPaths(cmd.Files)
	if err != nil {
		return fmt.Errorf("failed to expand paths: %w", err)
	}

	controls := orchestrator.Controls{
		Mode:         cfg.UI.DefaultMode,
		Progressive:  cmd.Progressive || cfg.UI.Progressive,
		AutoDownload: cfg.UI.AutoDownload,
	}
	if cmd.Mode != "" {
		controls.Mode = cmd.Mode
	}

	outDir := cfg.UI.OutputDir
	if cmd.Output != "" {
		outDir = cmd.Output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useTUI := !cmd.NoTUI && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	if !useTUI && len(files) == 0 {
		return fmt.Errorf("no images to compress")
	}

	if useTUI && cfg.Logger.File == "" {
		// the TUI owns the terminal
		appCtx = &types.AppContext{Version: appCtx.GetVersion(), Config: cfg, Logger: zap.NewNop().Sugar()}
	}

	w, cleanup, err := newWorker(ctx, appCtx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	downloader := orchestrator.DirDownloader{Dir: outDir}

	if useTUI {
		orch := orchestrator.New(w, downloader, controls, orchestrator.WithLogger(appCtx.GetLogger().Named("orchestrator")))
		model := ui.NewCompressModel(ctx, orch, cfg.UI.Modes, files, appCtx.GetVersion())
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		_, err = p.Run()
		return err
	}

	controls.AutoDownload = !cmd.DryRun
	return cmd.runPlain(ctx, appCtx, w, downloader, controls, files)
}

func (cmd *CompressCmd) runPlain(ctx context.Context, appCtx *types.AppContext, d orchestrator.Dispatcher, dl orchestrator.Downloader, controls orchestrator.Controls, files []string) error {
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("imgmin %s", appCtx.GetVersion())))
	fmt.Println(ui.ProcessingStyle.Render(fmt.Sprintf("Compressing %d files (mode %s):", len(files), controls.Mode)))

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	orch := orchestrator.New(d, dl, controls,
		orchestrator.WithLogger(appCtx.GetLogger().Named("orchestrator")),
		orchestrator.WithLogSink(func(line string) {
			_ = bar.Clear()
			fmt.Println(line)
			_ = bar.Add(1)
		}),
	)

	var succeeded, failed int
	var savedBytes int
	for _, file := range files {
		bar.Describe(file)
		fmt.Printf("\n%s\n", ui.InfoStyle.Render(file))

		ch, err := orch.Open(ctx, orchestrator.FileFromPath(file))
		if err != nil {
			_ = bar.Clear()
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", file, err)))
			failed++
			continue
		}
		for msg := range ch {
			orch.Handle(msg)
		}

		s := orch.State()
		if s.Task.Failed() {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %s", file, s.Task.Error)))
			failed++
			continue
		}
		succeeded++
		savedBytes += len(s.Task.Original) - len(s.Task.Result)
		if s.SavedTo != "" {
			fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ %s", s.SavedTo)))
		}

		if ctx.Err() != nil {
			break
		}
	}
	_ = bar.Finish()

	fmt.Printf("\n%s\n", ui.InfoStyle.Render(fmt.Sprintf("✅ Compressed: %d, ❌ Failed: %d, saved %d bytes", succeeded, failed, savedBytes)))
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}
