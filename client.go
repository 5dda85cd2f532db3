package aviron

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CommandRunDetails records the last request/reply pair sent on a Client,
// kept for debugging per spec.md §3.
type CommandRunDetails struct {
	Request string
	Reply   []byte
}

// Client drives one clamd Endpoint. It opens a fresh TCP connection for
// every command (spec.md §4.1/§5 — no connection pooling, no
// multiplexing) and memoizes the daemon's advertised command set the
// first time it is needed.
type Client struct {
	ep     *Endpoint
	logger zerolog.Logger

	capOnce sync.Once
	capErr  error
	caps    map[string]struct{}

	mu      sync.Mutex
	details CommandRunDetails
}

// NewClient returns a Client bound to ep. ep may be shared by many
// Clients; Client itself holds no socket until a command is issued.
func NewClient(ep *Endpoint, logger zerolog.Logger) *Client {
	return &Client{ep: ep, logger: logger}
}

// LastCommand returns the most recent request/reply pair observed by this
// client, for debugging per spec.md §3.
func (c *Client) LastCommand() CommandRunDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.details
}

func (c *Client) recordRun(request string, reply []byte) {
	c.mu.Lock()
	c.details = CommandRunDetails{Request: request, Reply: reply}
	c.mu.Unlock()
}

// Reachable attempts to open a TCP connection within timeout and reports
// whether it succeeded. It never returns an error; per spec.md §4.1, a
// reachability probe only ever answers true or false.
func (c *Client) Reachable(timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", c.ep.addr(), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ensureCapabilities issues VERSIONCOMMANDS at most once (double-checked
// lazy init via sync.Once, per spec.md §4.1/§9) and memoizes the
// advertised command set.
func (c *Client) ensureCapabilities(ctx context.Context) error {
	c.capOnce.Do(func() {
		cmds, err := execute[[]string](ctx, c, versionCommandsCommand{}, true)
		if err != nil {
			c.capErr = err
			return
		}
		set := make(map[string]struct{}, len(cmds))
		for _, name := range cmds {
			set[name] = struct{}{}
		}
		c.caps = set
	})
	return c.capErr
}

// checkCapability rejects cmdName before a socket is ever opened if the
// daemon did not advertise it, per spec.md §4.1/§8 ("Capability gating").
// The VERSIONCOMMANDS probe itself is always allowed through, so the
// bootstrap call doesn't deadlock on itself.
func (c *Client) checkCapability(ctx context.Context, cmdName string) error {
	if cmdName == "VERSIONCOMMANDS" {
		return nil
	}
	if err := c.ensureCapabilities(ctx); err != nil {
		return err
	}
	if _, ok := c.caps[cmdName]; !ok {
		return &UnknownCommandError{Command: cmdName}
	}
	return nil
}

// execute opens a fresh socket, writes cmd's request, reads the full
// reply, and closes the connection, per spec.md §4.1. skipCapCheck is
// true only for the VERSIONCOMMANDS bootstrap call itself.
func execute[T any](ctx context.Context, c *Client, cmd command[T], skipCapCheck bool) (T, error) {
	var zero T

	if !skipCapCheck {
		if err := c.checkCapability(ctx, cmd.name()); err != nil {
			return zero, err
		}
	}

	dialer := net.Dialer{Timeout: c.ep.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.ep.addr())
	if err != nil {
		return zero, &NetworkError{Op: cmd.name(), Err: err}
	}
	defer conn.Close()

	if c.ep.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.ep.readTimeout)); err != nil {
			return zero, &NetworkError{Op: cmd.name(), Err: err}
		}
	}

	var sent bytesRecorder
	w := io.MultiWriter(conn, &sent)
	if err := cmd.encode(w); err != nil {
		return zero, &NetworkError{Op: cmd.name(), Err: err}
	}

	var received bytesRecorder
	reader := bufio.NewReader(io.TeeReader(conn, &received))
	result, err := cmd.decode(reader)

	c.recordRun(sent.String(), received.Bytes())

	if err != nil {
		return zero, err
	}
	return result, nil
}

// bytesRecorder is an io.Writer that also satisfies the small surface
// LastCommand needs, without pulling in a buffered-pool dependency for
// what is only ever a few hundred bytes.
type bytesRecorder struct {
	buf []byte
}

func (b *bytesRecorder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *bytesRecorder) Bytes() []byte  { return b.buf }
func (b *bytesRecorder) String() string { return string(b.buf) }

// Ping sends PING and reports whether clamd replied PONG.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	return execute[bool](ctx, c, pingCommand{}, false)
}

// Version returns clamd's free-form version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	return execute[string](ctx, c, versionCommand{}, false)
}

// Stats returns clamd's multi-line STATS reply verbatim.
func (c *Client) Stats(ctx context.Context) (string, error) {
	return execute[string](ctx, c, statsCommand{}, false)
}

// Reload instructs clamd to reload its virus databases.
func (c *Client) Reload(ctx context.Context) error {
	_, err := execute[struct{}](ctx, c, reloadCommand{}, false)
	return err
}

// Shutdown instructs clamd to shut down.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := execute[struct{}](ctx, c, shutdownCommand{}, false)
	return err
}

// VersionCommands returns the set of commands clamd advertises. Client
// calls this itself, lazily, before any other command; exposing it lets
// callers introspect the advertised set directly.
func (c *Client) VersionCommands(ctx context.Context) ([]string, error) {
	return execute[[]string](ctx, c, versionCommandsCommand{}, false)
}

// Scan issues SCAN for path: archive-aware, stops at the first infected
// file within path.
func (c *Client) Scan(ctx context.Context, path string) (*ScanResult, error) {
	return execute[*ScanResult](ctx, c, scanFamilyCommand{cmdName: "SCAN", path: c.remote(path)}, false)
}

// ContScan issues CONTSCAN for path: recursive, does not stop on first
// hit, one reply line per file.
func (c *Client) ContScan(ctx context.Context, path string) (*ScanResult, error) {
	return execute[*ScanResult](ctx, c, scanFamilyCommand{cmdName: "CONTSCAN", path: c.remote(path)}, false)
}

// MultiScan issues MULTISCAN for path: daemon parallelizes internally,
// ordering across files is not guaranteed.
func (c *Client) MultiScan(ctx context.Context, path string) (*ScanResult, error) {
	return execute[*ScanResult](ctx, c, scanFamilyCommand{cmdName: "MULTISCAN", path: c.remote(path)}, false)
}

// ScanStream performs an INSTREAM scan of r, in chunkSize chunks (0 means
// DefaultChunkSize). The caller owns r's lifecycle; Aviron never closes
// it.
func (c *Client) ScanStream(ctx context.Context, r io.Reader, chunkSize int) (*ScanResult, error) {
	return execute[*ScanResult](ctx, c, instreamCommand{r: r, chunkSize: chunkSize}, false)
}

// remote translates a local path to the Endpoint's configured remote
// separator flavor.
func (c *Client) remote(path string) string {
	return translatePath(path, c.ep.fileSeparator)
}
