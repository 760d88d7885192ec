// Package fifo implements the named-pipe dispatcher named by spec.md §6 and
// SPEC_FULL.md §7, mirroring Afina::FIFONamespace::FIFOServer: commands are
// read, one line (plus data block) at a time, from one named pipe, and
// replies are written to a second named pipe. There is no per-connection
// concept here, only a single reader/writer pair, matching the original's
// one _reading_fifo / _writing_fifo.
package fifo

import (
	"bufio"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/latchkv/latchkv"
	"github.com/latchkv/latchkv/protocol"
)

// Server reads memcached-style text commands from a read FIFO and writes
// replies to a write FIFO. No third-party package creates named pipes more
// idiomatically than the stdlib's syscall.Mkfifo (see DESIGN.md), so this
// is the one server in the package that does not add a domain dependency
// beyond the protocol package itself.
type Server struct {
	cache  latchkv.Cache
	logger latchkv.Logger

	mu       sync.Mutex
	readFile *os.File
	writeFd  *os.File
	stopping bool
}

// New builds a Server bound to cache.
func New(cache latchkv.Cache, logger latchkv.Logger) *Server {
	if logger == nil {
		logger = latchkv.NoOpLogger{}
	}
	return &Server{cache: cache, logger: logger}
}

// Serve creates (if necessary) the two named pipes at readPath/writePath,
// then blocks reading commands from readPath and writing replies to
// writePath until Stop is called or an unrecoverable I/O error occurs.
//
// Opening a FIFO for reading blocks until a writer opens the other end and
// vice versa; this mirrors FIFOServer::_ThreadFunction's own open sequence,
// read end first, so a single dispatcher can be driven by a simple shell
// redirection (`cat commands > in-fifo` / `cat out-fifo`) the way the
// original's CLI tooling expected.
func (s *Server) Serve(readPath, writePath string) error {
	if err := ensureFIFO(readPath); err != nil {
		return err
	}
	if err := ensureFIFO(writePath); err != nil {
		return err
	}

	rf, err := os.OpenFile(readPath, os.O_RDONLY, os.ModeNamedPipe)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.readFile = rf
	s.mu.Unlock()

	wf, err := os.OpenFile(writePath, os.O_WRONLY, os.ModeNamedPipe)
	if err != nil {
		rf.Close()
		return err
	}
	s.mu.Lock()
	s.writeFd = wf
	s.mu.Unlock()

	s.logger.Info("fifo: serving", "read", readPath, "write", writePath)

	r := bufio.NewReader(rf)
	w := bufio.NewWriter(wf)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping || err == io.EOF {
				return nil
			}
			return err
		}
		line = trimCRLF(line)
		if line == "" {
			continue
		}

		header, perr := protocol.ParseHeader(line)
		if perr != nil {
			if _, err := w.Write(protocol.ErrorReply().Bytes()); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			continue
		}

		var data []byte
		if header.NeedsData() {
			data = make([]byte, header.Bytes+2)
			if _, err := io.ReadFull(r, data); err != nil {
				return err
			}
			data = data[:header.Bytes]
		}

		reply := protocol.Dispatch(s.cache, header, data)
		if reply.Suppressed() {
			continue
		}
		if _, err := w.Write(reply.Bytes()); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

// Stop closes both FIFO file handles, unblocking any in-flight Read/Write
// and causing Serve to return nil.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
	if s.readFile != nil {
		_ = s.readFile.Close()
	}
	if s.writeFd != nil {
		_ = s.writeFd.Close()
	}
}

func ensureFIFO(path string) error {
	err := syscall.Mkfifo(path, 0o600)
	if err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
