// Package logging creates the per-run log: every entry goes to a timestamped file, the
// operator narration is echoed to the console.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const FilePrefix = "gg_activate_fallback_"

func FileName(start time.Time) string {
	return FilePrefix + start.Format("20060102_150405") + ".log"
}

type RunLog struct {
	*logrus.Logger
	Path string

	file afero.File
}

// NewRunLog opens the run log in dir. console may be nil to disable the echo.
func NewRunLog(fs afero.Fs, dir string, start time.Time, console io.Writer) (*RunLog, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName(start))
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if console != nil {
		logger.AddHook(&consoleHook{out: console})
	}
	return &RunLog{
		Logger: logger,
		Path:   path,
		file:   f,
	}, nil
}

func (r *RunLog) Close() error {
	return r.file.Close()
}

// consoleHook prints the bare message of narration entries.
type consoleHook struct {
	out  io.Writer
	lock sync.Mutex
}

func (h *consoleHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (h *consoleHook) Fire(entry *logrus.Entry) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	_, err := io.WriteString(h.out, entry.Message+"\n")
	return err
}
