// Command invoker is the top-level entry point: it re-execs itself both
// as a sandbox-entering child (sandbox.Bootstrap) and as a
// multiprocessing child dispatching a bound entrypoint (multiproc.Main).
// Otherwise it runs as the top-level invoker process: it prepares the
// root cpuset, logs that it is ready and blocks; it does not itself
// receive or schedule submissions (spec §4, §8).
package main

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/sunwalker/invoker/cgroup"
	"github.com/sunwalker/invoker/multiproc"
	"github.com/sunwalker/invoker/sandbox"
)

func main() {
	// Every re-exec'd role must be recognized before any other
	// initialization runs, since a sandbox child's filesystem and
	// namespaces are not the parent's.
	sandbox.Bootstrap()
	multiproc.Main()

	configPath := flag.String("config", "/etc/sunwalker/worker.yaml", "path to the sandbox configuration")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("invoker: invalid log level")
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := cgroup.CreateRootCpuset(); err != nil {
		log.WithError(err).Fatal("invoker: failed to prepare root cpuset")
	}

	if _, err := os.Stat(*configPath); err != nil {
		log.WithError(err).WithField("path", *configPath).Warn("invoker: no sandbox configuration found, workers will need one supplied per submission")
	}

	log.Info("invoker: ready")
	select {}
}
