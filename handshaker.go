package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

var (
	cfg *config
)

// handshakerMain is the real main function for handshaker. It is necessary
// to work around the fact that deferred functions do not run when os.Exit()
// is called. The optional serverChan parameter is mainly used by tests to be
// notified with the server once it is setup so it can gracefully stop it
// when requested.
func handshakerMain(args []string, serverChan chan<- *server) error {
	// Load configuration and parse command line. This function also
	// sets the log levels accordingly.
	tcfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	cfg = tcfg
	if cfg.NoColor {
		color.NoColor = true
	}

	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// shutdownRequestChannel.
	interrupt := interruptListener()
	defer hskrLog.Info("Shutdown complete")

	// Show version at startup.
	hskrLog.Infof("Version %s", version())
	hskrLog.Infof("Active network: %s (magic %x)", activeNetParams.Name,
		activeNetParams.Net.Magic())

	// Return now if an interrupt signal was triggered.
	if interruptRequested(interrupt) {
		return nil
	}

	server, err := newServer(cfg, activeNetParams)
	if err != nil {
		hskrLog.Errorf("Unable to handshake with %v: %v", cfg.DestAddr, err)
		return err
	}
	defer func() {
		hskrLog.Infof("Gracefully shutting down the server...")
		server.Stop()
		server.WaitForShutdown()
	}()

	server.Start()
	if serverChan != nil {
		serverChan <- server
	}

	// Wait until the handshake finished or an interrupt signal was
	// received.
	select {
	case <-server.Done():
		return server.Err()
	case <-interrupt:
		return nil
	}
}

func main() {
	if err := handshakerMain(os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
