package aviron

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// command is the capability set every clamd command variant implements,
// per spec.md §3/§9: encode writes the wire request, decode parses the
// wire reply into T, and name reports the bare command token (used by the
// capability gate before a socket is ever opened).
type command[T any] interface {
	encode(w io.Writer) error
	decode(r *bufio.Reader) (T, error)
	name() string
}

// writeFramedCommand writes the "z<CMD>[ <ARG>]\0" framing shared by every
// non-streaming command, per spec.md §4.1/§6.
func writeFramedCommand(w io.Writer, cmd string, arg string) error {
	var b strings.Builder
	b.WriteByte('z')
	b.WriteString(cmd)
	if arg != "" {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	b.WriteByte(0)
	_, err := w.Write([]byte(b.String()))
	return err
}

// readLine reads one ASCII reply line terminated by NUL, newline, or EOF,
// per spec.md §4.1 ("the client reads until NUL or EOF").
func readLine(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return b.String(), nil
			}
			return b.String(), err
		}
		if c == 0 || c == '\n' {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

// readAll reads every reply line until the daemon closes the connection,
// used by multi-line replies (STATS, CONTSCAN, MULTISCAN). Lines are
// delimited by NUL or newline per spec.md §4.1; an empty line is kept
// (some STATS replies include one) unless it is simply the tail of a
// stream that has reached EOF.
func readAll(r *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := readLine(r)
		if err == io.EOF {
			if line != "" {
				lines = append(lines, line)
			}
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}

// --- PING ---

type pingCommand struct{}

func (pingCommand) name() string { return "PING" }

func (pingCommand) encode(w io.Writer) error { return writeFramedCommand(w, "PING", "") }

func (pingCommand) decode(r *bufio.Reader) (bool, error) {
	line, err := readLine(r)
	if err != nil && err != io.EOF {
		return false, &NetworkError{Op: "PING", Err: err}
	}
	return strings.TrimSpace(line) == "PONG", nil
}

// --- VERSION ---

type versionCommand struct{}

func (versionCommand) name() string { return "VERSION" }

func (versionCommand) encode(w io.Writer) error { return writeFramedCommand(w, "VERSION", "") }

func (versionCommand) decode(r *bufio.Reader) (string, error) {
	line, err := readLine(r)
	if err != nil && err != io.EOF {
		return "", &NetworkError{Op: "VERSION", Err: err}
	}
	return strings.TrimRight(line, " \t\x00"), nil
}

// --- STATS ---

type statsCommand struct{}

func (statsCommand) name() string { return "STATS" }

func (statsCommand) encode(w io.Writer) error { return writeFramedCommand(w, "STATS", "") }

func (statsCommand) decode(r *bufio.Reader) (string, error) {
	lines, err := readAll(r)
	if err != nil {
		return "", &NetworkError{Op: "STATS", Err: err}
	}
	return strings.Join(lines, "\n"), nil
}

// --- RELOAD ---

type reloadCommand struct{}

func (reloadCommand) name() string { return "RELOAD" }

func (reloadCommand) encode(w io.Writer) error { return writeFramedCommand(w, "RELOAD", "") }

func (reloadCommand) decode(r *bufio.Reader) (struct{}, error) {
	_, err := readLine(r)
	if err != nil && err != io.EOF {
		return struct{}{}, &NetworkError{Op: "RELOAD", Err: err}
	}
	return struct{}{}, nil
}

// --- SHUTDOWN ---

type shutdownCommand struct{}

func (shutdownCommand) name() string { return "SHUTDOWN" }

func (shutdownCommand) encode(w io.Writer) error { return writeFramedCommand(w, "SHUTDOWN", "") }

func (shutdownCommand) decode(r *bufio.Reader) (struct{}, error) {
	_, err := readLine(r)
	if err != nil && err != io.EOF {
		return struct{}{}, &NetworkError{Op: "SHUTDOWN", Err: err}
	}
	return struct{}{}, nil
}

// --- VERSIONCOMMANDS ---

type versionCommandsCommand struct{}

func (versionCommandsCommand) name() string { return "VERSIONCOMMANDS" }

func (versionCommandsCommand) encode(w io.Writer) error {
	return writeFramedCommand(w, "VERSIONCOMMANDS", "")
}

func (versionCommandsCommand) decode(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil && err != io.EOF {
		return nil, &NetworkError{Op: "VERSIONCOMMANDS", Err: err}
	}
	const marker = "COMMANDS: "
	idx := strings.Index(line, marker)
	if idx < 0 {
		return nil, &ProtocolError{Reply: line, Err: fmt.Errorf("missing %q marker", marker)}
	}
	return strings.Fields(line[idx+len(marker):]), nil
}

// --- SCAN family (SCAN, CONTSCAN, MULTISCAN) ---

type scanFamilyCommand struct {
	cmdName string
	path    string
}

func (c scanFamilyCommand) name() string { return c.cmdName }

func (c scanFamilyCommand) encode(w io.Writer) error {
	return writeFramedCommand(w, c.cmdName, c.path)
}

func (c scanFamilyCommand) decode(r *bufio.Reader) (*ScanResult, error) {
	lines, err := readAll(r)
	if err != nil {
		return nil, &NetworkError{Op: c.cmdName, Err: err}
	}
	result := newScanResult()
	for _, line := range lines {
		if err := result.recordLine(line); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// --- INSTREAM ---

// instreamCommand streams r to clamd in chunkSize chunks, terminated by a
// zero-length chunk, per spec.md §4.1/§6.
type instreamCommand struct {
	r         io.Reader
	chunkSize int
}

func (instreamCommand) name() string { return "INSTREAM" }

func (c instreamCommand) encode(w io.Writer) error {
	if err := writeFramedCommand(w, "INSTREAM", ""); err != nil {
		return err
	}
	chunkSize := c.chunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var lenPrefix [4]byte
	for {
		n, err := c.r.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(lenPrefix[:], uint32(n))
			if _, werr := w.Write(lenPrefix[:]); werr != nil {
				return werr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	binary.BigEndian.PutUint32(lenPrefix[:], 0)
	_, err := w.Write(lenPrefix[:])
	return err
}

func (instreamCommand) decode(r *bufio.Reader) (*ScanResult, error) {
	line, err := readLine(r)
	if err != nil && err != io.EOF {
		return nil, &NetworkError{Op: "INSTREAM", Err: err}
	}
	result := newScanResult()
	if line != "" {
		if err := result.recordLine(line); err != nil {
			return nil, err
		}
	}
	return result, nil
}
