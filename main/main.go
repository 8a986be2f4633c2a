/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	main.go: command line, service installation and the run loop.
*/

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/config"
	"github.com/shipnav/nmearouter/station"
	log "github.com/sirupsen/logrus"
	"github.com/takama/daemon"
)

var version = "v0.0.0"

const (
	serviceName        = "nmearouter"
	serviceDescription = "NMEA-0183 marine message router"
)

type Globals struct {
	Config string `short:"c" type:"path" default:"/etc/nmearouter.yaml" help:"configuration file."`
}

type runCmd struct {
	LogLevel string `help:"override the configured log level."`
}

type checkCmd struct{}

type installCmd struct{}

type removeCmd struct{}

type statusCmd struct{}

type versionCmd struct{}

var cli struct {
	Globals

	Run     runCmd     `cmd:"" default:"1" help:"route sentences until interrupted."`
	Check   checkCmd   `cmd:"" help:"validate the configuration and exit."`
	Install installCmd `cmd:"" help:"install as a system service."`
	Remove  removeCmd  `cmd:"" help:"remove the system service."`
	Status  statusCmd  `cmd:"" help:"print the system service status."`
	Version versionCmd `cmd:"" help:"print version."`
}

func (c *runCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if c.LogLevel != "" {
		level = c.LogLevel
	}
	if err := common.SetupLogging(level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	st, err := station.New(cfg, reg)
	if err != nil {
		return err
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		return err
	}
	log.Printf("nmearouter %s started with %d endpoints", version, len(cfg.Endpoints))

	var srv *statusServer
	if cfg.Status.Listen != "" {
		srv = newStatusServer(cfg.Status.Listen, st, reg)
		srv.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("%s received, shutting down", sig)

	if srv != nil {
		srv.Shutdown()
	}
	st.Close()
	return nil
}

func (c *checkCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	rules, err := cfg.FilterRules()
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d endpoints, %d rules\n", g.Config, len(cfg.Endpoints), len(rules))
	for _, r := range rules {
		fmt.Printf("  %s\n", r)
	}
	return nil
}

func newDaemon() (daemon.Daemon, error) {
	return daemon.New(serviceName, serviceDescription, daemon.SystemDaemon, "network.target")
}

func (c *installCmd) Run(g *Globals) error {
	if _, err := config.Load(g.Config); err != nil {
		return err
	}
	d, err := newDaemon()
	if err != nil {
		return err
	}
	path, err := filepath.Abs(g.Config)
	if err != nil {
		return err
	}
	out, err := d.Install("run", "--config", path)
	fmt.Println(out)
	return err
}

func (c *removeCmd) Run(g *Globals) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}
	out, err := d.Remove()
	fmt.Println(out)
	return err
}

func (c *statusCmd) Run(g *Globals) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}
	out, err := d.Status()
	fmt.Println(out)
	return err
}

func (c *versionCmd) Run(g *Globals) error {
	fmt.Println(version)
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name(serviceName),
		kong.Description(serviceDescription+" "+version),
		kong.UsageOnError())
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Errorf("%s: %s", ctx.Command(), err)
		os.Exit(1)
	}
}
