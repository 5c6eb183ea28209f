// config.go - Haupt-Konfigurationsfunktionen fuer visionprep
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (VISIONPREP_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (VISIONPREP_ORIGINS)
// - Models: Gibt Model-Verzeichnis zurueck (VISIONPREP_MODELS)
// - FetchTimeout: Timeout fuer Bild-URLs (VISIONPREP_FETCH_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (VISIONPREP_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Backend-, Parallelitaets- und Hub-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/7blacky7/visionprep/logutil"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via VISIONPREP_HOST
// Default: http://127.0.0.1:11500
func Host() *url.URL {
	defaultPort := "11500"

	s := strings.TrimSpace(Var("VISIONPREP_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via VISIONPREP_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("VISIONPREP_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins,
		"app://*",
		"file://*",
		"vscode-webview://*",
	)

	return origins
}

// Models gibt das Model-Verzeichnis zurueck
// Konfigurierbar via VISIONPREP_MODELS
// Default: $HOME/.visionprep/models
func Models() string {
	if s := Var("VISIONPREP_MODELS"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".visionprep", "models")
}

// FetchTimeout gibt das Timeout fuer das Laden von Bild-URLs zurueck
// Konfigurierbar via VISIONPREP_FETCH_TIMEOUT ("10s" oder Sekunden)
// Default: 30 Sekunden
func FetchTimeout() (timeout time.Duration) {
	timeout = 30 * time.Second
	if s := Var("VISIONPREP_FETCH_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			timeout = time.Duration(n) * time.Second
		}
	}

	if timeout <= 0 {
		slog.Warn("invalid fetch timeout, using default", "value", timeout)
		return 30 * time.Second
	}

	return timeout
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via VISIONPREP_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE,
// alternativ Namen wie "trace" oder "warn"
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VISIONPREP_DEBUG"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			if b {
				level = slog.LevelDebug
			}
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			level = slog.Level(i * -4)
		} else if l, err := logutil.ParseLevel(s); err == nil {
			level = l
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
