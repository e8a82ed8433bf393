package cmd

import (
	"context"
	"fmt"

	"github.com/lepinkainen/imgmin/types"
	"github.com/lepinkainen/imgmin/ui"
	"github.com/lepinkainen/imgmin/utils"
	"github.com/lepinkainen/imgmin/worker"
)

// CheckCmd verifies that the configured compressor can be used
type CheckCmd struct{}

func (cmd *CheckCmd) Run(appCtx *types.AppContext) error {
	cfg := appCtx.GetConfig().Compressor
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("imgmin %s", appCtx.GetVersion())))

	path, err := utils.ValidateCompressor(cfg)
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %v", err)))
		return err
	}

	if cfg.Wasm == "" {
		fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ Native compressor: %s", path)))
		return nil
	}

	// compiling proves the module is valid wasm with the imports we provide
	ctx := context.Background()
	runner, err := worker.NewWasmRunner(ctx, worker.WasmConfig{Path: cfg.Wasm, MemoryLimitPages: cfg.MemoryLimitPages})
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %v", err)))
		return err
	}
	defer runner.Close(ctx)

	fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ WebAssembly compressor: %s", path)))
	if cfg.MemoryLimitPages > 0 {
		fmt.Printf("%s\n", ui.InfoStyle.Render(fmt.Sprintf("Memory limit: %d pages (%d MiB)", cfg.MemoryLimitPages, cfg.MemoryLimitPages*64/1024)))
	}
	return nil
}
