package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meidoworks/nekoq-cutover/internal/fakemanager"
)

// Config describes the rehearsal manager, e.g.
//
//	listener = "127.0.0.1:9011"
//	[[unit]]
//	collection = "extracts"
//	name = "EXB2A23A"
//	status = "running"
//	stop_lag = 2
type Config struct {
	Listener string `toml:"listener"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	Units    []struct {
		Collection  string `toml:"collection"`
		Name        string `toml:"name"`
		Status      string `toml:"status"`
		IgnoreStart bool   `toml:"ignore_start"`
		StopLag     int    `toml:"stop_lag"`
	} `toml:"unit"`
}

func main() {
	var (
		configFile string
		enableGops bool
		debug      bool
	)
	root := &cobra.Command{
		Use:   "gg-fake-manager",
		Short: "Serve an in-memory replication manager for cutover rehearsals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enableGops {
				if err := agent.Listen(agent.Options{}); err != nil {
					return err
				}
				defer agent.Close()
			}

			config := &Config{Listener: "127.0.0.1:9011", User: "oggadmin"}
			if _, err := toml.DecodeFile(configFile, config); err != nil {
				return err
			}

			log := logrus.New()
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			m := fakemanager.New(config.Listener, config.User, config.Password)
			m.SetLogger(log)
			m.SetTLS(config.CertFile, config.KeyFile)
			for _, u := range config.Units {
				m.AddUnit(fakemanager.Unit{
					Collection:  u.Collection,
					Name:        u.Name,
					Status:      u.Status,
					IgnoreStart: u.IgnoreStart,
					StopLag:     u.StopLag,
				})
				log.WithField("status", u.Status).Infof("unit %s/%s", u.Collection, u.Name)
			}
			if err := m.Start(); err != nil {
				return err
			}
			log.Infoln("fake manager listening at", m.URL())

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigs
			fmt.Println("signal received:", sig)
			for _, r := range m.Mutations() {
				log.Debugf("%s %s %v", r.Method, r.Path, r.Body)
			}
			return m.Stop()
		},
	}
	root.Flags().StringVar(&configFile, "config", "fake-manager.toml", "toml file with listener, credentials and units")
	root.Flags().BoolVar(&enableGops, "gops", false, "start the gops diagnostics agent")
	root.Flags().BoolVar(&debug, "debug", false, "log the received mutations on shutdown")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
