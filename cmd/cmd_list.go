// cmd_list.go - List, Backends, Pull und Rm Commands
// Hauptfunktionen: ListHandler, BackendsHandler, PullHandler, DeleteHandler
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/superres"
)

// listTable - Tabelle im Stil von "ls"
func listTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()
}

// ListHandler - Listet lokal verfuegbare Modelle auf
func ListHandler(cmd *cobra.Command, args []string) error {
	var models []api.ModelResponse
	if isRemote(cmd) {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		resp, err := client.List(cmd.Context())
		if err != nil {
			return err
		}
		models = resp.Models
	} else {
		local, err := huggingface.NewClient().ListLocal(envconfig.Models())
		if err != nil {
			return err
		}
		for _, m := range local {
			models = append(models, api.ModelResponse{Name: m.Name, Path: m.Path, Task: m.Task})
		}
	}

	var data [][]string
	for _, m := range models {
		if len(args) == 0 || strings.HasPrefix(strings.ToLower(m.Name), strings.ToLower(args[0])) {
			data = append(data, []string{m.Name, m.Task, m.Path})
		}
	}

	listTable(cmd.OutOrStdout(), []string{"NAME", "TASK", "PATH"}, data)
	return nil
}

// BackendsHandler - Listet die registrierten Forward-Backends
func BackendsHandler(cmd *cobra.Command, _ []string) error {
	resp := api.BackendsResponse{Backends: superres.Backends(), Default: envconfig.Backend()}
	if isRemote(cmd) {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		r, err := client.Backends(cmd.Context())
		if err != nil {
			return err
		}
		resp = *r
	}

	var data [][]string
	for _, name := range resp.Backends {
		def := ""
		if name == resp.Default {
			def = "*"
		}
		data = append(data, []string{name, def})
	}

	listTable(cmd.OutOrStdout(), []string{"BACKEND", "DEFAULT"}, data)
	return nil
}

// PullHandler - Laedt ein Modell vom Hub in den Cache
func PullHandler(cmd *cobra.Command, args []string) error {
	hub := huggingface.NewClient()

	revision, err := cmd.Flags().GetString("revision")
	if err != nil {
		return err
	}

	include, err := cmd.Flags().GetStringSlice("include")
	if err != nil {
		return err
	}

	p := newProgressPrinter(cmd.ErrOrStderr(), "pulling "+args[0])
	opts := []huggingface.DownloadOption{
		huggingface.WithDownloadRevision(revision),
		huggingface.WithDownloadProgress(p.Update),
		huggingface.WithDownloadParallelism(int(envconfig.Parallel())),
	}
	if len(include) > 0 {
		opts = append(opts, huggingface.WithIncludePatterns(include...))
	}

	result, err := hub.DownloadModel(cmd.Context(), args[0], opts...)
	p.Done()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.CachePath)
	return nil
}

// DeleteHandler - Entfernt Modelle aus dem Hub-Cache
func DeleteHandler(cmd *cobra.Command, args []string) error {
	hub := huggingface.NewClient()
	for _, id := range args {
		if err := hub.RemoveCachedModel(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted '%s'\n", id)
	}
	return nil
}

// newListCmd - Erstellt den list Command
func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "list [PREFIX]",
		Aliases: []string{"ls"},
		Short:   "List models",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ListHandler,
	}
	addRemoteFlag(listCmd)
	return listCmd
}

// newBackendsCmd - Erstellt den backends Command
func newBackendsCmd() *cobra.Command {
	backendsCmd := &cobra.Command{
		Use:     "backends",
		Short:   "List super-resolution backends",
		Args:    cobra.ExactArgs(0),
		PreRunE: checkServerHeartbeat,
		RunE:    BackendsHandler,
	}
	addRemoteFlag(backendsCmd)
	return backendsCmd
}

// newPullCmd - Erstellt den pull Command
func newPullCmd() *cobra.Command {
	pullCmd := &cobra.Command{
		Use:   "pull MODEL_ID",
		Short: "Download a model from the Hugging Face hub",
		Args:  cobra.ExactArgs(1),
		RunE:  PullHandler,
	}
	pullCmd.Flags().String("revision", "main", "Model revision")
	pullCmd.Flags().StringSlice("include", nil, "Only download files matching these glob patterns")
	return pullCmd
}

// newRmCmd - Erstellt den rm Command
func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm MODEL_ID [MODEL_ID...]",
		Short: "Remove a model from the hub cache",
		Args:  cobra.MinimumNArgs(1),
		RunE:  DeleteHandler,
	}
}
