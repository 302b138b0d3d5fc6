package process

import (
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignals terminate the host; children must not outlive it.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// Seams for tests.
var (
	notifySignals = signal.Notify
	stopSignals   = signal.Stop
	exitProcess   = os.Exit
)

// InstallShutdownHooks arranges for every tracked process to be killed when
// the host receives SIGINT, SIGTERM or SIGQUIT, after which the host exits
// immediately. Installing more than once is a no-op. The returned function
// removes the hooks.
func (r *Registry) InstallShutdownHooks() (uninstall func()) {
	uninstall = func() {}
	r.hooksOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		stop := make(chan struct{})
		notifySignals(sigCh, shutdownSignals...)

		go func() {
			select {
			case sig := <-sigCh:
				r.log.Info("Signal: shutdown received, killing child processes", "signal", sig.String())
				r.Close()
				exitProcess(0)
			case <-stop:
			}
		}()

		uninstall = func() {
			stopSignals(sigCh)
			close(stop)
		}
	})
	return uninstall
}

// Personal.AI order the ending
