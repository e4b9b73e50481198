// Package config resolves the settings of a cutover run from positionals, the environment,
// an optional .env file and an optional toml file, in that order of precedence.
package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	cutover "github.com/meidoworks/nekoq-cutover"
	"github.com/meidoworks/nekoq-cutover/client"
)

const (
	EnvURL      = "GG_URL"
	EnvUser     = "GG_USER"
	EnvPass     = "GG_PASS"
	EnvExtract  = "EXTRACT_NAME"
	EnvReplicat = "REPLICAT_NAME"
)

// Positionals lists the required values in command line order.
var Positionals = []string{EnvURL, EnvUser, EnvPass, EnvExtract, EnvReplicat}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type File struct {
	Manager struct {
		URL                string   `toml:"url"`
		User               string   `toml:"user"`
		Password           string   `toml:"password"`
		InsecureSkipVerify *bool    `toml:"insecure_skip_verify"`
		RequestTimeout     Duration `toml:"request_timeout"`
	} `toml:"manager"`
	Cutover struct {
		Extract              string   `toml:"extract"`
		Replicat             string   `toml:"replicat"`
		PollInterval         Duration `toml:"poll_interval"`
		WaitTimeout          Duration `toml:"wait_timeout"`
		SettleDelay          Duration `toml:"settle_delay"`
		RepositionActivePair bool     `toml:"reposition_active_pair"`
	} `toml:"cutover"`
	Output struct {
		LogDir          string `toml:"log_dir"`
		MetricsTextfile string `toml:"metrics_textfile"`
	} `toml:"output"`
	// Markers is keyed by unit kind then action, e.g. [markers.replicat.start].
	Markers map[string]map[string]cutover.MarkerSet `toml:"markers"`
}

type Settings struct {
	URL      string
	User     string
	Password string
	Extract  string
	Replicat string

	InsecureSkipVerify   bool
	RequestTimeout       time.Duration
	PollInterval         time.Duration
	WaitTimeout          time.Duration
	SettleDelay          time.Duration
	RepositionActivePair bool

	LogDir          string
	MetricsTextfile string

	Markers *cutover.MarkerCatalog
}

func Defaults() *Settings {
	return &Settings{
		InsecureSkipVerify: true,
		RequestTimeout:     client.DefaultRequestTimeout,
		PollInterval:       cutover.DefaultPollInterval,
		WaitTimeout:        cutover.DefaultWaitTimeout,
		SettleDelay:        cutover.DefaultSettleDelay,
		LogDir:             ".",
		Markers:            cutover.DefaultMarkerCatalog(),
	}
}

type Sources struct {
	Fs         afero.Fs
	Args       []string
	ConfigFile string
	// EnvFile is skipped when it does not exist.
	EnvFile string
	// Lookup reads the process environment, os.LookupEnv when nil.
	Lookup func(key string) (string, bool)
}

// MissingError names the required values no source provided.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing " + strings.Join(e.Names, ", ")
}

func Load(src Sources) (*Settings, error) {
	if src.Fs == nil {
		src.Fs = afero.NewOsFs()
	}
	if src.Lookup == nil {
		src.Lookup = os.LookupEnv
	}
	s := Defaults()

	if src.ConfigFile != "" {
		f, err := readFile(src.Fs, src.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := s.apply(f); err != nil {
			return nil, err
		}
	}

	dotenv, err := readEnvFile(src.Fs, src.EnvFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := src.Lookup(key); ok && v != "" {
			return v
		}
		return dotenv[key]
	}

	fields := map[string]*string{
		EnvURL:      &s.URL,
		EnvUser:     &s.User,
		EnvPass:     &s.Password,
		EnvExtract:  &s.Extract,
		EnvReplicat: &s.Replicat,
	}
	for idx, name := range Positionals {
		if idx < len(src.Args) && src.Args[idx] != "" {
			*fields[name] = src.Args[idx]
		} else if v := lookup(name); v != "" {
			*fields[name] = v
		}
	}
	s.URL = strings.TrimRight(s.URL, "/")

	var missing []string
	for _, name := range Positionals {
		if *fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return s, &MissingError{Names: missing}
	}
	return s, nil
}

func readFile(fs afero.Fs, path string) (*File, error) {
	r, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer r.Close()
	f := new(File)
	if _, err := toml.NewDecoder(r).Decode(f); err != nil {
		return nil, errors.Wrapf(err, "decode config file %s", path)
	}
	return f, nil
}

func readEnvFile(fs afero.Fs, path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	r, err := fs.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open env file")
	}
	defer r.Close()
	m, err := godotenv.Parse(r)
	if err != nil {
		return nil, errors.Wrapf(err, "parse env file %s", path)
	}
	return m, nil
}

func (s *Settings) apply(f *File) error {
	s.URL = f.Manager.URL
	s.User = f.Manager.User
	s.Password = f.Manager.Password
	s.Extract = f.Cutover.Extract
	s.Replicat = f.Cutover.Replicat
	if f.Manager.InsecureSkipVerify != nil {
		s.InsecureSkipVerify = *f.Manager.InsecureSkipVerify
	}
	setDuration(&s.RequestTimeout, f.Manager.RequestTimeout)
	setDuration(&s.PollInterval, f.Cutover.PollInterval)
	setDuration(&s.WaitTimeout, f.Cutover.WaitTimeout)
	setDuration(&s.SettleDelay, f.Cutover.SettleDelay)
	s.RepositionActivePair = f.Cutover.RepositionActivePair
	if f.Output.LogDir != "" {
		s.LogDir = f.Output.LogDir
	}
	s.MetricsTextfile = f.Output.MetricsTextfile

	kinds := make([]string, 0, len(f.Markers))
	for k := range f.Markers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		kind, ok := cutover.ParseUnitKind(k)
		if !ok {
			return errors.Errorf("markers: unknown unit kind %q", k)
		}
		for a, set := range f.Markers[k] {
			action, ok := cutover.ParseAction(a)
			if !ok {
				return errors.Errorf("markers.%s: unknown action %q", k, a)
			}
			s.Markers.Override(kind, action, set)
		}
	}
	return nil
}

func setDuration(dst *time.Duration, d Duration) {
	if d.Duration > 0 {
		*dst = d.Duration
	}
}

func (s *Settings) ManagerConfig() client.ManagerConfig {
	return client.ManagerConfig{
		BaseURL:            s.URL,
		Username:           s.User,
		Password:           s.Password,
		InsecureSkipVerify: s.InsecureSkipVerify,
		Timeout:            s.RequestTimeout,
	}
}

// CutoverOptions fills the orchestration options; run scoped fields are left to the caller.
func (s *Settings) CutoverOptions() cutover.Options {
	return cutover.Options{
		Extract:              cutover.Extract(s.Extract),
		Replicat:             cutover.Replicat(s.Replicat),
		Markers:              s.Markers,
		PollInterval:         s.PollInterval,
		WaitTimeout:          s.WaitTimeout,
		SettleDelay:          s.SettleDelay,
		RepositionActivePair: s.RepositionActivePair,
	}
}
