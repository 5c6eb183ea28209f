// cmd_show.go - Show Command
// Hauptfunktionen: ShowHandler, showInfo, tensorRows
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/grounding"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/superres"
	"github.com/7blacky7/visionprep/tokenizer"
	"github.com/7blacky7/visionprep/weights"
)

// maxNameWidth begrenzt Tensor-Namen in der Tabelle
const maxNameWidth = 40

// ShowHandler - Zeigt Informationen zu einem lokalen Modell
func ShowHandler(cmd *cobra.Command, args []string) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	dir, err := huggingface.NewClient().ResolveLocal(args[0])
	if err != nil {
		return err
	}

	return showInfo(dir, verbose, cmd.OutOrStdout())
}

// showInfo - Gibt Modell-Informationen je nach Aufgabe aus
func showInfo(dir string, verbose bool, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.SetAutoWrapText(false)

		table.AppendBulk(rows())
		table.Render()
		fmt.Fprintln(w)
	}

	task, err := huggingface.DetectTask(dir)
	if err != nil {
		return err
	}

	switch task {
	case huggingface.TaskSuperResolution:
		path, err := superres.WeightsFile(dir)
		if err != nil {
			return err
		}

		sd, err := weights.Load(path)
		if err != nil {
			return err
		}

		arch := superres.DefaultArch()
		scale, scaleErr := superres.InferScale(sd, arch.NumInCh)
		arch.Scale = scale

		tableRender("Model", func() (rows [][]string) {
			rows = append(rows, []string{"", "task", task})
			rows = append(rows, []string{"", "path", dir})
			rows = append(rows, []string{"", "weights", path})
			if scaleErr == nil {
				rows = append(rows, []string{"", "scale", "x" + strconv.Itoa(scale)})
			}
			rows = append(rows, []string{"", "tensors", strconv.Itoa(sd.Len())})
			rows = append(rows, []string{"", "parameters", strconv.Itoa(sd.NumParams())})

			status := "ok"
			if scaleErr != nil {
				status = scaleErr.Error()
			} else if err := arch.Validate(sd); err != nil {
				status = err.Error()
			}
			rows = append(rows, []string{"", "RRDBNet layout", runewidth.Truncate(strings.ReplaceAll(status, "\n", "; "), 80, "...")})
			rows = append(rows, []string{"", "backend", envconfig.Backend()})
			return
		})

		if verbose {
			tableRender("Tensors", func() [][]string {
				return tensorRows(weights.SummarizeAll(sd))
			})
		}

	case huggingface.TaskVisualGrounding:
		cfg, err := grounding.LoadConfig(dir)
		if err != nil {
			return err
		}

		tok, err := tokenizer.Load(dir)
		if err != nil {
			return err
		}

		tableRender("Model", func() (rows [][]string) {
			rows = append(rows, []string{"", "task", task})
			rows = append(rows, []string{"", "path", dir})
			rows = append(rows, []string{"", "patch image size", strconv.Itoa(cfg.PatchImageSize)})
			rows = append(rows, []string{"", "max source length", strconv.Itoa(cfg.MaxSrcLength)})
			rows = append(rows, []string{"", "mean", fmt.Sprint(cfg.Mean)})
			rows = append(rows, []string{"", "std", fmt.Sprint(cfg.Std)})
			rows = append(rows, []string{"", "resample", cfg.Resample.String()})
			rows = append(rows, []string{"", "prompt", strconv.Quote(cfg.Prompt)})
			rows = append(rows, []string{"", "vocabulary", strconv.Itoa(tok.Vocabulary().Size())})
			return
		})

	default:
		return fmt.Errorf("%s: %w", dir, huggingface.ErrUnknownTask)
	}

	return nil
}

// tensorRows - Eine Zeile je Tensor, lange Namen werden gekuerzt
func tensorRows(summaries []weights.Summary) [][]string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			"",
			runewidth.Truncate(s.Name, maxNameWidth, "..."),
			s.DType,
			fmt.Sprint(s.Shape),
			strconv.FormatFloat(s.Mean, 'g', 4, 64),
			strconv.FormatFloat(s.Std, 'g', 4, 64),
			strconv.FormatFloat(s.Min, 'g', 4, 64),
			strconv.FormatFloat(s.Max, 'g', 4, 64),
		})
	}
	return rows
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show MODEL",
		Short: "Show information for a local model",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowHandler,
	}

	showCmd.Flags().BoolP("verbose", "v", false, "Show per-tensor statistics")

	return showCmd
}
