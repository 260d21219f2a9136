// Command webserv is the CLI entry point: it takes one optional
// config-path argument, falling back to DefaultConfig, wires the parsed
// configuration into the reactor, and runs the event loop until a fatal
// error.
package main

import (
	"fmt"
	"os"

	"webserv/internal/config"
	"webserv/internal/reactor"
	"webserv/internal/weblog"
)

// DefaultConfig is used when no config-path argument is given.
const DefaultConfig = "/etc/webserv/webserv.conf"

func main() {
	log := weblog.New("info")
	defer log.Sync()

	configPath := DefaultConfig
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.ParseFile(configPath)
	if err != nil {
		log.Errorw("config parse failed", "path", configPath, "error", err)
		os.Exit(1)
	}

	r, err := reactor.New(cfg, log, reactor.Options{})
	if err != nil {
		log.Errorw("reactor setup failed", "error", err)
		os.Exit(1)
	}
	defer r.Close()

	for _, key := range cfg.SocketKeys() {
		log.Infow("listening", "host", fmt.Sprintf("%d", key.Host), "port", key.Port)
	}

	if err := r.Run(); err != nil {
		log.Errorw("event loop exited", "error", err)
		os.Exit(1)
	}
}
