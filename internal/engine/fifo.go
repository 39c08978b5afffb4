package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var ErrLocked = errors.New("another engine holds the lock")
var ErrNoReader = errors.New("no engine is reading the fifo")

// makeFIFO creates path as a named pipe unless something is already there.
func makeFIFO(path string) error {
	err := unix.Mkfifo(path, 0o666)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

// OpenFIFO opens the command pipe and returns its lines. The pipe is opened
// read-write so that writers closing their end never produce EOF; the
// channel closes when the returned Closer is closed.
func OpenFIFO(path string) (<-chan string, io.Closer, error) {
	if err := makeFIFO(path); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		readLines(f, lines)
	}()
	return lines, f, nil
}

func readLines(r io.Reader, out chan<- string) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), " \t\r")
		if line == "" {
			continue
		}
		out <- line
	}
	if err := s.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Error().Err(err).Msg("reading fifo")
	}
}

// WriteFIFO sends lines to a running engine. It fails with ErrNoReader
// instead of blocking when nothing has the pipe open.
func WriteFIFO(path string, lines ...string) error {
	if err := makeFIFO(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if errors.Is(err, unix.ENXIO) {
		return ErrNoReader
	}
	if err != nil {
		return err
	}
	defer f.Close()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	_, err = io.WriteString(f, b.String())
	return err
}

type lock struct {
	f *os.File
}

func (l *lock) Close() error {
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}

// Lock takes the single-instance lock for the engine using the pipe at
// fifo. It returns ErrLocked when another engine is running.
func Lock(fifo string) (io.Closer, error) {
	f, err := os.OpenFile(fifo+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock %s.lock: %w", fifo, err)
	}
	return &lock{f: f}, nil
}

// Running reports whether an engine holds the lock for fifo.
func Running(fifo string) bool {
	l, err := Lock(fifo)
	if err != nil {
		return errors.Is(err, ErrLocked)
	}
	l.Close()
	return false
}
