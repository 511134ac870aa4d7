// Package main is the entry point for the mediacheck binary. It runs media
// locators through the same resolution pipeline the server uses, so policy
// changes can be verified without sending chat requests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tongxiaolong01/llama-factory-go/internal/application/services"
	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/config"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var kindFlag string

	cmd := &cobra.Command{
		Use:           "mediacheck [flags] locator...",
		Short:         "Check media locators against the server's security policy",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configPath, kindFlag, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "image", "Media kind: image, video or audio")
	return cmd
}

func run(cmd *cobra.Command, configPath, kindFlag string, locators []string) error {
	var kind models.MediaKind
	switch kindFlag {
	case "image":
		kind = models.MediaImage
	case "video":
		kind = models.MediaVideo
	case "audio":
		kind = models.MediaAudio
	default:
		return fmt.Errorf("invalid kind %q: want image, video or audio", kindFlag)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureSafePath(); err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, "console")
	guard := services.NewMediaGuard(services.MediaPolicy{
		SafeRoot:           cfg.Media.SafePath,
		AllowLocalFiles:    cfg.Media.LocalFilesAllowed(),
		AllowedURLPrefixes: cfg.Media.AllowedURLPrefixes,
		FetchTimeout:       cfg.Media.FetchTimeout,
	}, nil, logger)
	resolver := services.NewMediaResolver(guard, logger, nil)

	denied := 0
	for _, locator := range locators {
		media, err := resolver.Resolve(cmd.Context(), locator, kind)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "DENY  %s: %v\n", locator, err)
			denied++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ALLOW %s (%s via %s)\n", locator, media.Kind, media.Source)
		media.Close()
	}

	if denied > 0 {
		return fmt.Errorf("%d of %d locators denied", denied, len(locators))
	}
	return nil
}
