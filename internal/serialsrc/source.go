// Package serialsrc reads +UUDF angle reports from an anchor attached over a
// serial line and hands them to the same dispatcher the UDP listener uses.
package serialsrc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/monitoring"
	"github.com/banshee-data/aoa.report/internal/network"
	"github.com/banshee-data/aoa.report/internal/timeutil"
	"go.bug.st/serial"
)

// ErrWriteFailed is returned when a command is only partly written.
var ErrWriteFailed = errors.New("short write to serial port")

// Port is the minimal interface needed for a serial port.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Opener opens the port at path. OpenPort is the real implementation.
type Opener func(path string, opts PortOptions) (Port, error)

// OpenPort opens a real serial port.
func OpenPort(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return p, nil
}

// Source streams lines from a serial port into a Dispatcher.
type Source struct {
	path       string
	port       Port
	dispatcher *network.Dispatcher
	clock      timeutil.Clock

	commandMu sync.Mutex
	closeOnce sync.Once
}

// Config configures a Source.
type Config struct {
	Path       string
	Options    PortOptions
	Dispatcher *network.Dispatcher
	Clock      timeutil.Clock
	// Opener defaults to OpenPort.
	Opener Opener
	// InitCommands are written with SendCommand right after the port opens.
	InitCommands []string
}

// New opens the port described by cfg.
func New(cfg Config) (*Source, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("serial source needs a dispatcher")
	}
	opener := cfg.Opener
	if opener == nil {
		opener = OpenPort
	}
	port, err := opener(cfg.Path, cfg.Options)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Source{path: cfg.Path, port: port, dispatcher: cfg.Dispatcher, clock: clock}
	for _, cmd := range cfg.InitCommands {
		if err := s.SendCommand(cmd); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to send %q to %s: %w", cmd, cfg.Path, err)
		}
	}
	monitoring.Logf("serial source on %s (%s), %d init commands", cfg.Path, cfg.Options, len(cfg.InitCommands))
	return s, nil
}

// SendCommand writes an AT command, adding the CR LF terminator if missing.
func (s *Source) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\r\n")) {
		command += "\r\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Run scans the port line by line until ctx is cancelled or the port reaches
// EOF. Lines that are not angle reports (command echoes, OK) are skipped.
func (s *Source) Run(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	// the blocking Scan runs apart from the loop so cancellation is prompt
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			line := append([]byte(nil), scan.Bytes()...)
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return fmt.Errorf("serial read %s: %w", s.path, err)
		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("serial read %s: %w", s.path, err)
				default:
				}
				return nil
			}
			if !bytes.HasPrefix(bytes.TrimSpace(line), []byte(aoa.UUDFPrefix)) {
				monitoring.Debugf("serial %s: skip %q", s.path, line)
				continue
			}
			s.dispatcher.Dispatch(line, "serial:"+s.path, s.clock.Now())
		}
	}
}

// Close closes the port, which also unblocks Run.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.port.Close() })
	return err
}
