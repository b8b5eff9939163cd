package scpi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultPort is the raw SCPI socket port used by Keysight instruments.
const DefaultPort = "5025"

// DefaultTimeout matches the instrument response timeout used for sweeps.
const DefaultTimeout = 10 * time.Second

var (
	ErrNotConnected = errors.New("scpi: not connected")
	// ErrTransport marks a failed write or read. The session is closed when
	// it is returned since a late reply would desync every later query.
	ErrTransport = errors.New("scpi: transport failure")
)

// Conn is a newline-terminated SCPI session over a raw TCP socket.
type Conn struct {
	address string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// ResolveAddress turns a user supplied instrument address into host:port.
// Accepted forms:
//
//	192.168.0.124
//	192.168.0.124:5025
//	TCPIP0::192.168.0.124::inst0::INSTR
//	TCPIP::192.168.0.124::5025::SOCKET
//	::1 or [::1]:5025
func ResolveAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty instrument address")
	}

	if isVISA(address) {
		parts := strings.Split(address, "::")
		if len(parts) < 2 || !strings.HasPrefix(strings.ToUpper(parts[0]), "TCPIP") || parts[1] == "" {
			return "", fmt.Errorf("unsupported VISA resource %q", address)
		}
		port := DefaultPort
		if len(parts) >= 4 && strings.EqualFold(parts[len(parts)-1], "SOCKET") {
			port = parts[2]
		}
		return net.JoinHostPort(parts[1], port), nil
	}

	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), DefaultPort), nil
}

// isVISA reports whether address is a VISA resource string rather than a
// host. Bare IPv6 addresses also contain "::" but never a VISA interface
// prefix.
func isVISA(address string) bool {
	head, _, ok := strings.Cut(address, "::")
	if !ok || head == "" || strings.HasPrefix(head, "[") {
		return false
	}
	return net.ParseIP(address) == nil
}

// Dial opens a session to the instrument. Every write and read performed on
// the returned Conn is bounded by timeout.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Conn, error) {
	hostport, err := ResolveAddress(address)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", hostport, err)
	}

	return &Conn{
		address: hostport,
		timeout: timeout,
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64*1024),
	}, nil
}

// Address returns the resolved host:port of the session.
func (c *Conn) Address() string {
	return c.address
}

// Write sends a command without waiting for a response.
func (c *Conn) Write(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(cmd)
}

// Query sends a command and reads one response line.
func (c *Conn) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLocked(cmd); err != nil {
		return "", err
	}
	return c.readLocked()
}

// Close shuts the socket down. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// writeLocked sends a command (caller must hold c.mu)
func (c *Conn) writeLocked(cmd string) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: write %q: %w", ErrTransport, cmd, err)
	}
	return nil
}

// readLocked reads a response line (caller must hold c.mu)
func (c *Conn) readLocked() (string, error) {
	if c.conn == nil {
		return "", ErrNotConnected
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	response, err := c.reader.ReadString('\n')
	if err != nil {
		c.dropLocked()
		return "", fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	return strings.TrimSpace(response), nil
}

// dropLocked closes the socket after a failed exchange; the unread part of
// the stream is discarded with it (caller must hold c.mu)
func (c *Conn) dropLocked() {
	c.conn.Close()
	c.conn = nil
	c.reader.Reset(nil)
}
