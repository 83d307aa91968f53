//go:build windows
// +build windows

package main

import (
	"log/slog"
	"os"

	"golang.org/x/sys/windows/svc"
)

// windowsService translates service control requests into a stop message for
// the serve loop, so stopping the service shuts the prober down gracefully.
type windowsService struct {
	stopCh chan<- bool
}

func (ws *windowsService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}
	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	for c := range r {
		switch c.Cmd {
		case svc.Interrogate:
			changes <- c.CurrentStatus
		case svc.Stop, svc.Shutdown:
			ws.stopCh <- true
			changes <- svc.Status{State: svc.StopPending}
			return
		default:
			slog.Warn("Ignoring unexpected service control request", slog.Any("request", c))
		}
	}

	changes <- svc.Status{State: svc.StopPending}
	return
}

func main() {
	isService, err := svc.IsWindowsService()
	if err != nil {
		slog.Error("Failed to detect Windows service environment", slog.Any("error", err))
		os.Exit(1)
	}

	stopCh := make(chan bool)
	if isService {
		go func() {
			if err := svc.Run("reachprobe", &windowsService{stopCh: stopCh}); err != nil {
				slog.Error("Failed to run Windows service", slog.Any("error", err))
			}
		}()
	}

	os.Exit(run(stopCh))
}
