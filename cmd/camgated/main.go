package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/abihf/camgate"
	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/config"
	"github.com/abihf/camgate/protocol"
)

func main() {
	if err := serve(config.Load()); err != nil {
		log.Fatal(err)
	}
}

type server struct {
	opts camgate.Options
	// one capture at a time, the camera is exclusive
	mu sync.Mutex
}

func serve(conf *config.Config) error {
	if isAlreadyRun(conf.PidFile) {
		return errors.New("already run")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	detector, err := camgate.StartDetector(ctx, conf, slog.Default())
	if err != nil {
		return errors.Wrap(err, "Can not initialize detector")
	}
	defer detector.Close()

	opts, err := camgate.OptionsFromConfig(conf, detector, slog.Default())
	if err != nil {
		return errors.Wrap(err, "Invalid capture config")
	}
	srv := &server{opts: opts}

	if err := writeLockFile(conf.PidFile); err != nil {
		log.Println(err)
	} else {
		defer os.Remove(conf.PidFile)
	}

	os.Remove(conf.Socket)

	ln, err := net.Listen("unix", conf.Socket)
	if err != nil {
		return errors.Wrap(err, "Listen error")
	}
	defer ln.Close()

	os.Chmod(conf.Socket, 0666)

	go func() {
		for {
			fd, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("Accept error: %v\n", err.Error())
				return
			}

			go srv.handle(ctx, fd)
		}
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)
	<-ctx.Done()
	log.Printf("Caught signal: shutting down.")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

func (s *server) handle(ctx context.Context, c net.Conn) {
	defer c.Close()

	for {
		req, err := protocol.ReadReq(c)
		if err != nil {
			if err.Error() != "EOF" {
				log.Println("Can not read request", err)
			}
			return
		}

		switch req.Action {
		case protocol.ActionCapture:
			summary, err := s.capture(ctx, req)
			if err != nil {
				log.Printf("Capture error: %v", err)
				protocol.WriteErrorRes(c, err)
			} else {
				protocol.WriteSuccessRes(c, summary.Extras())
			}
		default:
			protocol.WriteErrorRes(c, errors.Errorf("Unknown action %q", req.Action))
		}
	}
}

func (s *server) capture(ctx context.Context, req *protocol.Req) (*protocol.CaptureSummary, error) {
	creq, err := protocol.ToCaptureReq(req)
	if err != nil {
		return nil, err
	}

	opts := s.opts
	opts.AttemptID = uuid.NewString()
	if creq.Position != "" {
		pos, err := capture.ParsePosition(creq.Position)
		if err != nil {
			return nil, err
		}
		opts.Capture.Position = pos
	}
	if creq.Timeout > 0 {
		opts.Timeout = creq.Timeout
	}
	log.Printf("Capturing for %s (attempt %s)\n", creq.Client, opts.AttemptID)

	s.mu.Lock()
	defer s.mu.Unlock()
	batch, err := camgate.Capture(ctx, opts)
	if err != nil {
		return nil, err
	}
	return camgate.Summarize(opts.AttemptID, batch), nil
}

// isAlreadyRun reports whether the pid file names a live process.
func isAlreadyRun(path string) bool {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		log.Println("Can not read pid file", err)
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		log.Println("Invalid existing pid file", err)
		return false
	}
	// signal 0 only checks that the process exists
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

func writeLockFile(path string) error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		return errors.Wrapf(err, "Can not write pid file %s", path)
	}
	return nil
}
