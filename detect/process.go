package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/abihf/camgate/capture"
)

// ProcessConfig describes an external detector helper. The helper reads one
// JSON frame per line on stdin and answers with one JSON line on stdout.
type ProcessConfig struct {
	Command string
	Args    []string
	Env     []string
	Logger  *slog.Logger
}

type frameRequest struct {
	// Seq numbers requests on this process. The helper echoes it back.
	Seq       uint64 `json:"seq"`
	FrameSeq  uint64 `json:"frame_seq"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Timestamp int64  `json:"timestamp_ns"`
	FrameData []byte `json:"frame_data"`
}

type frameResponse struct {
	Seq        uint64      `json:"seq"`
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// Process is a Detector backed by a long running helper process. Calls are
// serialised. A call abandoned through its context leaves the process usable:
// the late reply is dropped by a later call. Only pipe errors and helper exit
// are fatal.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	requests  chan []byte
	replies   chan frameResponse
	closing   chan struct{}
	closeOnce sync.Once
	exited    chan struct{}

	dead     chan struct{}
	deadErr  error
	deadOnce sync.Once

	mu  sync.Mutex
	seq uint64
}

var _ Detector = (*Process)(nil)

// StartProcess launches the helper. ctx bounds the helper's lifetime.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	if cfg.Command == "" {
		return nil, errors.New("Detector command not set")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "Can not open detector stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "Can not open detector stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "Can not open detector stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "Can not start detector %s", cfg.Command)
	}

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		logger:   logger,
		requests: make(chan []byte),
		replies:  make(chan frameResponse, 1),
		closing:  make(chan struct{}),
		exited:   make(chan struct{}),
		dead:     make(chan struct{}),
	}
	readDone := make(chan struct{})
	go p.logStderr(stderr)
	go p.writeLoop()
	go func() {
		defer close(readDone)
		p.readLoop(stdout)
	}()
	go func() {
		// Wait closes the pipes, so the reader has to see EOF first
		<-readDone
		err := cmd.Wait()
		if err != nil && ctx.Err() == nil {
			logger.Error("Detector exited", "command", cfg.Command, "error", err)
		} else {
			logger.Debug("Detector exited", "command", cfg.Command)
		}
		p.fail(errors.New("Detector process exited"))
		close(p.exited)
	}()
	return p, nil
}

func (p *Process) fail(err error) {
	p.deadOnce.Do(func() {
		p.deadErr = err
		close(p.dead)
	})
}

func (p *Process) writeLoop() {
	for {
		select {
		case line := <-p.requests:
			if _, err := p.stdin.Write(line); err != nil {
				p.fail(errors.Wrap(err, "Can not write frame to detector"))
				return
			}
		case <-p.closing:
			return
		case <-p.dead:
			return
		}
	}
}

func (p *Process) readLoop(r io.Reader) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			p.fail(errors.Wrap(err, "Can not read detector reply"))
			return
		}
		var res frameResponse
		if err := json.Unmarshal(line, &res); err != nil {
			p.fail(errors.Wrap(err, "Invalid detector reply"))
			return
		}
		select {
		case p.replies <- res:
		case <-p.dead:
			return
		}
	}
}

func (p *Process) logStderr(r io.Reader) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := scan.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			p.logger.Error("Detector", "line", line)
		case strings.Contains(line, "[WARN"):
			p.logger.Warn("Detector", "line", line)
		default:
			p.logger.Debug("Detector", "line", line)
		}
	}
}

// Detect sends frame to the helper and waits for its answer.
func (p *Process) Detect(ctx context.Context, frame *capture.Frame) ([]Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.dead:
		return nil, p.deadErr
	default:
	}

	p.seq++
	seq := p.seq
	line, err := json.Marshal(&frameRequest{
		Seq:       seq,
		FrameSeq:  frame.Seq,
		Width:     frame.Width,
		Height:    frame.Height,
		Format:    frame.Format.String(),
		Timestamp: frame.Timestamp.UnixNano(),
		FrameData: frame.Buffer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Can not encode frame")
	}
	line = append(line, '\n')

	select {
	case p.requests <- line:
	case <-p.dead:
		return nil, p.deadErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case res := <-p.replies:
			switch {
			case res.Seq < seq:
				p.logger.Debug("Dropping late detector reply", "seq", res.Seq)
				continue
			case res.Seq > seq:
				p.fail(errors.Errorf("Detector answered request %d while waiting for %d", res.Seq, seq))
				return nil, p.deadErr
			}
			if res.Error != "" {
				return nil, errors.Errorf("Detector failed on frame %d: %s", frame.Seq, res.Error)
			}
			return res.Detections, nil
		case <-p.dead:
			return nil, p.deadErr
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close ends the helper's input and waits for it to exit.
func (p *Process) Close() error {
	p.closeOnce.Do(func() { close(p.closing) })
	err := p.stdin.Close()
	<-p.exited
	return err
}
