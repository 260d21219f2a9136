//go:build linux

// Package socket binds and listens on the TCP endpoints the config
// names, handing back non-blocking raw file descriptors for
// internal/reactor to register with epoll. It works in raw fds rather
// than net.Listener's buffered model since the reactor needs the
// underlying descriptor for epoll_ctl.
package socket

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const listenBacklog = 1024

// Socket is a listening TCP endpoint, uniquely identified by (host, port).
type Socket struct {
	Host uint32
	Port int
	FD   int
}

// New binds and listens on host:port, returning a non-blocking Socket.
func New(host uint32, port int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	addr.Addr = hostToBytes(host)

	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}

	return &Socket{Host: host, Port: port, FD: fd}, nil
}

func hostToBytes(host uint32) [4]byte {
	return [4]byte{
		byte(host >> 24),
		byte(host >> 16),
		byte(host >> 8),
		byte(host),
	}
}

// Accept accepts one pending connection, setting it non-blocking. Returns
// (0, "", unix.EAGAIN) when the accept queue is drained — callers should
// stop looping on that error rather than treat it as fatal.
func (s *Socket) Accept() (fd int, peer string, err error) {
	connFD, sa, err := unix.Accept(s.FD)
	if err != nil {
		return 0, "", err
	}
	if err := unix.SetNonblock(connFD, true); err != nil {
		unix.Close(connFD)
		return 0, "", err
	}
	return connFD, peerString(sa), nil
}

func peerString(sa unix.Sockaddr) string {
	if v, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3], v.Port)
	}
	return "unknown"
}

// Close closes the listening socket.
func (s *Socket) Close() error {
	return unix.Close(s.FD)
}
