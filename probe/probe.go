package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrSpawn wraps every failure to launch the probing tool.
var ErrSpawn = errors.New("unable to start probe")

// Source yields raw output lines one at a time. Once NextLine reports false
// the source is finished and must not be polled again.
type Source interface {
	NextLine() (string, bool)
	Terminate() error
	Exited() <-chan struct{}
}

// Poller is implemented by sources that can tell whether a line is ready.
// Sources without it are always read, at the cost of blocking the tick.
type Poller interface {
	Pending() bool
}

// Driver owns a probing subprocess and reads its standard output line by line.
type Driver struct {
	cmd    *exec.Cmd
	reader *bufio.Reader

	done bool

	reap   sync.Once
	reaper errgroup.Group
	exited chan struct{}

	lock       sync.Mutex
	terminated bool
}

// Start launches command with args. Standard error is discarded. Cancelling
// ctx kills the process as well, but callers are still expected to Terminate.
func Start(ctx context.Context, command string, args []string) (*Driver, error) {
	logrus.Tracef("EXEC: %v %v", command, strings.Join(args, " "))

	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	return &Driver{
		cmd:    cmd,
		reader: bufio.NewReader(stdout),
		exited: make(chan struct{}),
	}, nil
}

// Pid of the running probe.
func (d *Driver) Pid() int {
	return d.cmd.Process.Pid
}

// NextLine blocks until a full line is available. It returns false at end of
// file or on a read error, after which the driver is finished. A trailing
// line without a newline is still returned.
func (d *Driver) NextLine() (string, bool) {
	if d.done {
		return "", false
	}

	line, err := d.reader.ReadString('\n')
	if err != nil {
		d.done = true
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
			logrus.Warn("[ PROBE_READ ] ", err)
		}
		d.startReap()
		if line == "" {
			return "", false
		}
	}

	return strings.TrimRight(line, "\r\n"), true
}

// Terminate kills the probe. Repeated calls and calls after the process has
// already exited are no-ops. It does not wait for the process to be reaped.
func (d *Driver) Terminate() (err error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.terminated {
		return nil
	}
	d.terminated = true

	select {
	case <-d.exited:
		return nil
	default:
	}

	if err = d.cmd.Process.Kill(); err != nil && errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	d.startReap()

	return
}

// Exited is closed once the process has been reaped.
func (d *Driver) Exited() <-chan struct{} {
	return d.exited
}

// Wait blocks until the process has been reaped and returns its exit error.
// It must only be called after NextLine reported false or Terminate was called.
func (d *Driver) Wait() error {
	d.startReap()
	return d.reaper.Wait()
}

func (d *Driver) startReap() {
	d.reap.Do(func() {
		d.reaper.Go(func() error {
			defer close(d.exited)
			err := d.cmd.Wait()
			logrus.Debug("[ PROBE_EXIT ] pid: ", d.cmd.Process.Pid, " state: ", d.cmd.ProcessState)
			return err
		})
	})
}
