package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	cutover "github.com/meidoworks/nekoq-cutover"
	"github.com/meidoworks/nekoq-cutover/client"
	"github.com/meidoworks/nekoq-cutover/config"
	"github.com/meidoworks/nekoq-cutover/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, afero.NewOsFs())
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, fs afero.Fs) int {
	var (
		configFile string
		envFile    string
		enableGops bool
		code       = 1
	)

	root := &cobra.Command{
		Use:           "gg-activate [GG_URL GG_USER GG_PASS EXTRACT_NAME REPLICAT_NAME]",
		Short:         "Reposition a fallback Extract/Replicat pair to the current position and start it",
		Args:          cobra.MaximumNArgs(len(config.Positionals)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enableGops {
				if err := agent.Listen(agent.Options{}); err != nil {
					return err
				}
				defer agent.Close()
			}
			settings, err := config.Load(config.Sources{
				Fs:         fs,
				Args:       args,
				ConfigFile: configFile,
				EnvFile:    envFile,
			})
			var missing *config.MissingError
			if errors.As(err, &missing) {
				fmt.Fprintln(stderr, "ERROR:", err)
				fmt.Fprint(stderr, cmd.UsageString())
				code = 1
				return nil
			}
			if err != nil {
				return err
			}
			code = activate(cmd.Context(), settings, fs, stdout, stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "toml file with manager, cutover and output settings")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read for GG_* and *_NAME variables when present")
	root.Flags().BoolVar(&enableGops, "gops", false, "start the gops diagnostics agent")

	root.AddCommand(&cobra.Command{
		Use:   "audit <journal>",
		Short: "Re-check a saved run journal for ordering and reposition safety",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := audit(fs, args[0], stdout)
			if err != nil {
				return err
			}
			if ok {
				code = 0
			}
			return nil
		},
	})

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}
	return code
}

func activate(ctx context.Context, s *config.Settings, fs afero.Fs, stdout, stderr io.Writer) int {
	start := time.Now()
	runLog, err := logging.NewRunLog(fs, s.LogDir, start, stdout)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR: cannot create run log:", err)
		return 1
	}
	defer runLog.Close()
	log := runLog.Logger

	metrics := cutover.NewMetrics()
	opts := s.CutoverOptions()
	opts.Log = log
	opts.Metrics = metrics
	o := cutover.NewOrchestrator(client.NewManagerClient(s.ManagerConfig(), log), opts)

	log.Info("=== GoldenGate Fallback Activation ===")
	log.WithField("run", o.Journal().RunID).Infof("Timestamp: %s", start.Format(time.RFC3339))
	log.Infof("Manager:   %s", s.URL)
	log.Infof("Extract:   %s", s.Extract)
	log.Infof("Replicat:  %s", s.Replicat)
	log.Infof("Log file:  %s", runLog.Path)
	log.Info("")

	result, runErr := o.Run(ctx)

	if err := writeJournal(fs, runLog.Path+".journal", o.Journal()); err != nil {
		log.Warnf("journal not written: %v", err)
	}
	if s.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(s.MetricsTextfile); err != nil {
			log.Warnf("metrics not written: %v", err)
		}
	}

	var notFound *cutover.UnitNotFoundError
	var unsettled *cutover.UnitUnsettledError
	var interrupted *cutover.InterruptedError
	switch {
	case runErr == nil:
		log.Infof("Completed with %d warning(s). Log: %s", result.Warnings, runLog.Path)
		return 0
	case errors.As(runErr, &notFound):
		log.Errorf("Nothing was changed. Check the %s name on %s.", notFound.Unit.Kind, s.URL)
	case errors.As(runErr, &unsettled):
		log.Errorf("Nothing was changed. %s is still %s, re-run once it has settled.", unsettled.Unit, unsettled.Status)
	case errors.As(runErr, &interrupted):
		log.Errorf("INTERRUPTED after phase %s. Commands already sent are not undone, re-run to complete.", interrupted.Phase)
	default:
		log.Error("WARNING: Not all processes are running.")
	}
	log.WithFields(logrus.Fields{"phase": string(result.Phase), "warnings": result.Warnings}).
		Errorf("FAILED: %v", runErr)
	log.Infof("Check log: %s", runLog.Path)
	log.Infof("Check the manager console: %s", s.URL)
	return 1
}

func writeJournal(fs afero.Fs, path string, j *cutover.Journal) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := j.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func audit(fs afero.Fs, path string, out io.Writer) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	runID, entries, err := cutover.ReadJournal(f)
	if err != nil {
		return false, err
	}

	fmt.Fprintf(out, "run %s, %d entries\n", runID, len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "%4d %s %-8s %-9s %-10s %-8s %-16s %s\n",
			e.Seq, e.At.Format("15:04:05.000"), e.Type, e.Kind.Collection(), e.Unit,
			actionName(e.Action), e.Outcome+stateName(e), e.Detail)
	}

	ok := true
	for _, check := range []struct {
		name string
		fn   func([]cutover.JournalEntry) error
	}{
		{"ordering", cutover.CheckOrdering},
		{"reposition safety", cutover.CheckRepositionSafety},
	} {
		if err := check.fn(entries); err != nil {
			ok = false
			fmt.Fprintf(out, "%s: FAILED: %v\n", check.name, err)
		} else {
			fmt.Fprintf(out, "%s: OK\n", check.name)
		}
	}
	return ok, nil
}

func actionName(a cutover.Action) string {
	if a == 0 {
		return ""
	}
	return a.String()
}

func stateName(e cutover.JournalEntry) string {
	if e.Type != cutover.EntryProbe {
		return ""
	}
	return e.State.String()
}
