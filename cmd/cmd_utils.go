// cmd_utils.go - Hilfsfunktionen fuer die Commands
// Hauptfunktionen: setupLogging, checkServerHeartbeat, resolveModel, progressPrinter
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/logutil"
	"github.com/7blacky7/visionprep/vision"
)

// setupLogging - Setzt den globalen Logger nach VISIONPREP_DEBUG
func setupLogging() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
}

// addRemoteFlag - Fuegt --remote hinzu
func addRemoteFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("remote", false, "Send the request to a running visionprep server (VISIONPREP_HOST)")
}

// isRemote - Prueft ob --remote gesetzt ist
func isRemote(cmd *cobra.Command) bool {
	remote, _ := cmd.Flags().GetBool("remote")
	return remote
}

// checkServerHeartbeat - Prueft ob der Server erreichbar ist (nur mit --remote)
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	if !isRemote(cmd) {
		return nil
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("visionprep server not responding at %s - start it with 'visionprep serve'", client.Host())
		}
		return err
	}
	return nil
}

// loadOptions - Bild-Ladeoptionen aus der Umgebung
func loadOptions() []vision.LoadOption {
	return []vision.LoadOption{
		vision.WithTimeout(envconfig.FetchTimeout()),
		vision.WithMaxBytes(int64(envconfig.MaxImageBytes())),
	}
}

// resolveModel - Findet ein Modell lokal oder laedt es vom Hub
func resolveModel(cmd *cobra.Command, ref string) (string, error) {
	hub := huggingface.NewClient()
	if dir, err := hub.ResolveLocal(ref); err == nil {
		return dir, nil
	}

	p := newProgressPrinter(cmd.ErrOrStderr(), "pulling "+ref)
	defer p.Done()
	return hub.Resolve(cmd.Context(), ref, huggingface.WithDownloadProgress(p.Update))
}

// isTerminal - Prueft ob w ein Terminal ist
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressPrinter gibt Download-Fortschritt auf einer Zeile aus.
// Ohne Terminal wird nur das Ende gemeldet.
type progressPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	label  string
	tty    bool
	width  int
	last   int64
	total  int64
	active bool
}

func newProgressPrinter(w io.Writer, label string) *progressPrinter {
	p := &progressPrinter{w: w, label: label, tty: isTerminal(w), width: 80}
	if p.tty {
		if f, ok := w.(*os.File); ok {
			if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
				p.width = width
			}
		}
	}
	return p
}

// Update ist ein huggingface.ProgressCallback
func (p *progressPrinter) Update(downloaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last, p.total, p.active = downloaded, total, true
	if !p.tty {
		return
	}

	line := fmt.Sprintf("%s: %s/%s", p.label, humanBytes(downloaded), humanBytes(total))
	if total > 0 {
		line += fmt.Sprintf(" %3d%%", downloaded*100/total)
	}
	if len(line) > p.width-1 {
		line = line[:p.width-1]
	}
	fmt.Fprintf(p.w, "\r%-*s", p.width-1, line)
}

// Done schliesst die Fortschrittszeile ab
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	if p.tty {
		fmt.Fprintln(p.w)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", p.label, humanBytes(p.last))
}

// humanBytes formatiert eine Byte-Anzahl (1000er Basis)
func humanBytes(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}
