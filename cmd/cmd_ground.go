// cmd_ground.go - Visual-Grounding Command
// Hauptfunktionen: GroundHandler, showSample
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/grounding"
	"github.com/7blacky7/visionprep/vision"
)

// GroundHandler - Baut ein Grounding-Sample aus Bild und Text
func GroundHandler(cmd *cobra.Command, args []string) error {
	model, image, text := args[0], args[1], strings.Join(args[2:], " ")

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	includePatch, err := cmd.Flags().GetBool("patch")
	if err != nil {
		return err
	}

	var resp *api.GroundingResponse
	if isRemote(cmd) {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		img, err := imageRef(image)
		if err != nil {
			return err
		}

		resp, err = client.Grounding(cmd.Context(), &api.GroundingRequest{
			Model:        model,
			ImageRef:     img,
			Text:         text,
			IncludePatch: includePatch,
		})
		if err != nil {
			return err
		}
	} else {
		dir, err := resolveModel(cmd, model)
		if err != nil {
			return err
		}

		b, err := grounding.Load(dir, grounding.WithLoadOptions(loadOptions()...))
		if err != nil {
			return err
		}

		sample, err := b.Build(cmd.Context(), vision.FromPath(image), text)
		if err != nil {
			return err
		}

		resp, err = sample.Response(model, includePatch)
		if err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	showSample(resp, cmd.OutOrStdout())
	return nil
}

// showSample - Tabellarische Ausgabe eines Samples
func showSample(resp *api.GroundingResponse, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)

	table.AppendBulk([][]string{
		{"", "caption", resp.Caption},
		{"", "prompt", runewidth.Truncate(resp.Prompt, 72, "...")},
		{"", "tokens", fmt.Sprint(len(resp.Source))},
		{"", "source", runewidth.Truncate(fmt.Sprint(resp.Source), 72, "...]")},
		{"", "image size", fmt.Sprintf("%dx%d", resp.Width, resp.Height)},
		{"", "patch shape", fmt.Sprint(resp.PatchShape)},
		{"", "resize ratio", fmt.Sprintf("w=%.6g h=%.6g", resp.WResizeRatio, resp.HResizeRatio)},
	})
	table.Render()
}

// newGroundCmd - Erstellt den ground Command
func newGroundCmd() *cobra.Command {
	groundCmd := &cobra.Command{
		Use:     "ground MODEL IMAGE TEXT...",
		Short:   "Build a visual grounding sample from an image and a text",
		Args:    cobra.MinimumNArgs(3),
		PreRunE: checkServerHeartbeat,
		RunE:    GroundHandler,
	}

	groundCmd.Flags().Bool("json", false, "Print the sample as JSON")
	groundCmd.Flags().Bool("patch", false, "Include the normalized patch values (with --json)")
	addRemoteFlag(groundCmd)

	return groundCmd
}
