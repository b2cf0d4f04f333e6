package probe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileSource replays ping output captured to a file. With follow set it keeps
// waiting for the file to grow, like tail -f, until terminated.
type FileSource struct {
	file    *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
	partial string
	offset  int64

	done   bool
	exited chan struct{}
	once   sync.Once
}

func OpenFile(path string, follow bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	s := &FileSource{
		file:   f,
		reader: bufio.NewReader(f),
		exited: make(chan struct{}),
	}

	if follow {
		s.watcher, err = fsnotify.NewWatcher()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		if err = s.watcher.Add(path); err != nil {
			s.watcher.Close()
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
	}

	return s, nil
}

// NextLine returns the next line of the file. In follow mode it blocks on
// write notifications when it runs out of data.
func (s *FileSource) NextLine() (string, bool) {
	if s.done {
		return "", false
	}

	for {
		chunk, err := s.reader.ReadString('\n')
		s.partial += chunk
		s.offset += int64(len(chunk))
		if err == nil {
			line := strings.TrimRight(s.partial, "\r\n")
			s.partial = ""
			return line, true
		}
		if !errors.Is(err, io.EOF) {
			logrus.Warn("[ REPLAY_READ ] ", err)
			return s.finish()
		}
		if s.watcher == nil || !s.wait() {
			return s.finish()
		}
	}
}

// Pending reports whether NextLine can make progress without waiting for the
// file to be written to. Outside follow mode it is always true.
func (s *FileSource) Pending() bool {
	if s.done || s.watcher == nil || s.reader.Buffered() > 0 {
		return true
	}
	fi, err := s.file.Stat()
	if err != nil {
		return true
	}
	return fi.Size() > s.offset
}

func (s *FileSource) finish() (string, bool) {
	s.done = true
	s.close()
	if s.partial != "" {
		line := strings.TrimRight(s.partial, "\r\n")
		s.partial = ""
		return line, true
	}
	return "", false
}

// wait blocks until the file is written to again. It reports false once the
// watcher is closed or the file goes away.
func (s *FileSource) wait() bool {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return false
			}
			if ev.Has(fsnotify.Write) {
				return true
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return false
			}
			logrus.Warn("[ REPLAY_WATCH ] ", err)
		}
	}
}

// Terminate stops following and releases the file. A NextLine blocked in
// follow mode returns once the watcher is closed.
func (s *FileSource) Terminate() error {
	s.close()
	return nil
}

func (s *FileSource) Exited() <-chan struct{} {
	return s.exited
}

func (s *FileSource) close() {
	s.once.Do(func() {
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.file.Close()
		close(s.exited)
	})
}
