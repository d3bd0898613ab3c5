package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"video2pdf/internal/config"
	"video2pdf/internal/engine"
)

func main() {
	cmd := &cli.Command{
		Name:  "generate",
		Usage: "Render a synthetic sample clip to try the converter with",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "sample.mp4", Usage: "clip path"},
			&cli.FloatFlag{Name: "seconds", Aliases: []string{"s"}, Value: 2, Usage: "clip length"},
			&cli.IntFlag{Name: "rate", Value: 25, Usage: "clip frame rate"},
		},
		Action: generate,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func generate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	loader := engine.NewLoader(cfg.FFmpegPath, cfg.WorkDir)
	if err := loader.Probe(ctx); err != nil {
		fmt.Println("Please install ffmpeg and try again")
		return err
	}

	out := cmd.String("out")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	fmt.Println("Generating sample clip with", loader.Version())
	if err := engine.GenerateTestPattern(ctx, loader.Bin(), out, cmd.Float("seconds"), int(cmd.Int("rate"))); err != nil {
		return err
	}
	fmt.Println("Sample clip written to", out)
	return nil
}
