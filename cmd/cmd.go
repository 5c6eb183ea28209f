// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/visionprep/envconfig"

	// registriert das onnx Backend (Stub ohne Build-Tag onnx)
	_ "github.com/7blacky7/visionprep/superres/onnx"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-28s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "visionprep",
		Short:         "Super-resolution and visual grounding preprocessing",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	enhanceCmd := newEnhanceCmd()
	groundCmd := newGroundCmd()
	showCmd := newShowCmd()
	pullCmd := newPullCmd()
	rmCmd := newRmCmd()
	listCmd := newListCmd()
	backendsCmd := newBackendsCmd()

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{
		serveCmd,
		enhanceCmd,
		groundCmd,
		showCmd,
		pullCmd,
		rmCmd,
		listCmd,
		backendsCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VISIONPREP_DEBUG"],
				envVars["VISIONPREP_HOST"],
				envVars["VISIONPREP_MODELS"],
				envVars["VISIONPREP_ORIGINS"],
				envVars["VISIONPREP_BACKEND"],
				envVars["VISIONPREP_MAX_IMAGE_BYTES"],
				envVars["VISIONPREP_FETCH_TIMEOUT"],
				envVars["VISIONPREP_ALLOW_REMOTE_SOURCES"],
				envVars["VISIONPREP_ONNX_LIBRARY"],
				envVars["VISIONPREP_ONNX_GPU"],
			})
		case enhanceCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VISIONPREP_HOST"],
				envVars["VISIONPREP_MODELS"],
				envVars["VISIONPREP_BACKEND"],
				envVars["VISIONPREP_PARALLEL"],
			})
		case pullCmd, rmCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["HF_TOKEN"],
				envVars["HF_ENDPOINT"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VISIONPREP_HOST"],
				envVars["VISIONPREP_MODELS"],
			})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		enhanceCmd,
		groundCmd,
		showCmd,
		pullCmd,
		rmCmd,
		listCmd,
		backendsCmd,
	)

	return rootCmd
}
