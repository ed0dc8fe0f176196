// Package snapshot renders a dashboard to a static HTML page and its JSON
// twin, replacing the previous files atomically.
package snapshot

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/ethereum"
	"github.com/kjannette/trahn-analytics/internal/metrics"
	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/report"
)

//go:embed templates/*.tmpl
var templates embed.FS

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%+.1f%%", v) },
	"short": ethereum.ShortTrader,
	"date":  func(t time.Time) string { return t.Format(models.DateLayout) },
	"join": func(flags []models.Flag) string {
		s := make([]string, len(flags))
		for i, f := range flags {
			s[i] = string(f)
		}
		return strings.Join(s, ", ")
	},
}

type Writer struct {
	path string
	tmpl *template.Template
	log  *zap.Logger
}

// New prepares a writer for path. The JSON copy goes next to it with a
// .json extension.
func New(path string, log *zap.Logger) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is empty")
	}
	tmpl, err := template.New("dashboard.html.tmpl").Funcs(funcs).ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{path: path, tmpl: tmpl, log: log.Named("snapshot")}, nil
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) JSONPath() string {
	return strings.TrimSuffix(w.path, filepath.Ext(w.path)) + ".json"
}

func (w *Writer) Render(out io.Writer, d *report.Dashboard) error {
	return w.tmpl.Execute(out, d)
}

// Write renders d fully in memory first so a template error never truncates
// the published page.
func (w *Writer) Write(d *report.Dashboard) error {
	var page bytes.Buffer
	if err := w.Render(&page, d); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	// Stage both, then publish the page before its JSON.
	pageTmp, err := stage(w.path, page.Bytes())
	if err != nil {
		return err
	}
	jsonTmp, err := stage(w.JSONPath(), data)
	if err != nil {
		os.Remove(pageTmp)
		return err
	}
	if err := os.Rename(pageTmp, w.path); err != nil {
		os.Remove(pageTmp)
		os.Remove(jsonTmp)
		return fmt.Errorf("rename %s: %w", w.path, err)
	}
	if err := os.Rename(jsonTmp, w.JSONPath()); err != nil {
		os.Remove(jsonTmp)
		return fmt.Errorf("rename %s: %w", w.JSONPath(), err)
	}

	metrics.SnapshotLastSuccess.SetToCurrentTime()
	w.log.Info("snapshot written",
		zap.String("path", w.path),
		zap.String("run_id", d.RunID),
		zap.Strings("failed_sections", d.Failed()))
	return nil
}

// stage writes data to a synced temp file next to path and returns its name.
func stage(path string, data []byte) (name string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}
