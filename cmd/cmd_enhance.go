// cmd_enhance.go - Super-Resolution Command
// Hauptfunktionen: EnhanceHandler, outputPath
package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/superres"
	"github.com/7blacky7/visionprep/vision"
)

// outputPath - Zielpfad <dir>/<name>_x<scale>.<ext> fuer eine Quelle
func outputPath(dir, ref string, scale int, format string) string {
	base := ref
	if vision.IsURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			base = u.Path
		}
	}
	base = path.Base(filepath.ToSlash(base))

	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "image"
	}

	ext := "png"
	if format == string(vision.FormatJPEG) {
		ext = "jpg"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_x%d.%s", stem, scale, ext))
}

// normalizeFormat - png oder jpeg
func normalizeFormat(f string) (string, error) {
	switch strings.ToLower(f) {
	case "", "png":
		return string(vision.FormatPNG), nil
	case "jpg", "jpeg":
		return string(vision.FormatJPEG), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (png, jpeg)", f)
	}
}

// EnhanceHandler - Vergroessert ein oder mehrere Bilder
func EnhanceHandler(cmd *cobra.Command, args []string) error {
	model, images := args[0], args[1:]

	outDir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	formatFlag, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := normalizeFormat(formatFlag)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	if isRemote(cmd) {
		return enhanceRemote(cmd, model, images, outDir, format)
	}

	dir, err := resolveModel(cmd, model)
	if err != nil {
		return err
	}

	opts := []superres.Option{superres.WithLoadOptions(loadOptions()...)}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		opts = append(opts, superres.WithBackend(backend))
	}
	if parallel, _ := cmd.Flags().GetInt("parallel"); parallel > 0 {
		opts = append(opts, superres.WithParallel(parallel))
	}

	p, err := superres.New(dir, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	srcs := make([]vision.Source, len(images))
	for i, ref := range images {
		srcs[i] = vision.FromPath(ref)
	}

	outputs, err := p.RunBatch(cmd.Context(), srcs)
	if err != nil {
		return err
	}

	for i, out := range outputs {
		dst := outputPath(outDir, images[i], p.Arch().Scale, format)
		if err := vision.SaveArray(dst, out.Image); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dst)
	}
	return nil
}

// imageRef - URL bleibt URL, lokale Dateien werden mitgeschickt
func imageRef(ref string) (api.ImageRef, error) {
	if vision.IsURL(ref) {
		return api.ImageRef{URL: ref}, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return api.ImageRef{}, err
	}
	return api.ImageRef{Image: data}, nil
}

func enhanceRemote(cmd *cobra.Command, model string, images []string, outDir, format string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, ref := range images {
		img, err := imageRef(ref)
		if err != nil {
			return err
		}

		resp, err := client.SuperResolution(cmd.Context(), &api.SuperResolutionRequest{
			Model:    model,
			ImageRef: img,
			Format:   format,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}

		dst := outputPath(outDir, ref, resp.Scale, resp.Format)
		if err := os.WriteFile(dst, resp.Image, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dst)
	}
	return nil
}

// newEnhanceCmd - Erstellt den enhance Command
func newEnhanceCmd() *cobra.Command {
	enhanceCmd := &cobra.Command{
		Use:     "enhance MODEL IMAGE [IMAGE...]",
		Aliases: []string{"upscale"},
		Short:   "Upscale images with a super-resolution model",
		Args:    cobra.MinimumNArgs(2),
		PreRunE: checkServerHeartbeat,
		RunE:    EnhanceHandler,
	}

	enhanceCmd.Flags().StringP("output", "o", ".", "Output directory")
	enhanceCmd.Flags().String("format", "png", "Output format (png, jpeg)")
	enhanceCmd.Flags().String("backend", "", "Forward backend (default $VISIONPREP_BACKEND)")
	enhanceCmd.Flags().Int("parallel", 0, "Images processed concurrently (default $VISIONPREP_PARALLEL)")
	addRemoteFlag(enhanceCmd)

	return enhanceCmd
}
