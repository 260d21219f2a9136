//go:build linux

// Package reactor implements the single-threaded epoll event loop: it
// registers listening and client fds, dispatches accept/read/write on
// readiness, and sweeps idle connections between batches.
package reactor

import (
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"webserv/internal/client"
	"webserv/internal/config"
	"webserv/internal/httpreq"
	"webserv/internal/response"
	"webserv/internal/router"
	"webserv/internal/socket"
)

const (
	maxEvents              = 1024
	requestReadSize        = 64 * 1024
	responseWriteSize      = 64 * 1024
	defaultMaxConnections  = 1024
	defaultIdleTimeout     = 60 * time.Second
)

// Options configures the reactor's connection and idle-timeout limits.
type Options struct {
	MaxConnections      int
	ClientIdleTimeout   time.Duration
}

// Reactor owns the epoll instance, the listening sockets and the live
// client map.
type Reactor struct {
	epfd     int
	cfg      *config.Config
	resolver *router.Resolver
	log      *zap.SugaredLogger
	opts     Options

	sockets map[config.SocketKey]*socket.Socket
	fdToKey map[int]config.SocketKey // listening fd -> SocketKey
	clients map[int]*client.Client
}

// New creates a Reactor bound to cfg, with one listening socket per
// distinct (host, port) the config names.
func New(cfg *config.Config, log *zap.SugaredLogger, opts Options) (*Reactor, error) {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = defaultMaxConnections
	}
	if opts.ClientIdleTimeout <= 0 {
		opts.ClientIdleTimeout = defaultIdleTimeout
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		epfd:     epfd,
		cfg:      cfg,
		resolver: router.NewResolver(cfg),
		log:      log,
		opts:     opts,
		sockets:  make(map[config.SocketKey]*socket.Socket),
		fdToKey:  make(map[int]config.SocketKey),
		clients:  make(map[int]*client.Client),
	}

	for _, key := range cfg.SocketKeys() {
		sock, err := socket.New(key.Host, key.Port)
		if err != nil {
			unix.Close(epfd)
			return nil, err
		}
		r.sockets[key] = sock
		r.fdToKey[sock.FD] = key
		if err := r.registerRead(sock.FD); err != nil {
			unix.Close(epfd)
			return nil, err
		}
	}

	return r, nil
}

func (r *Reactor) registerRead(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *Reactor) modify(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (r *Reactor) deregister(fd int) {
	var ev unix.EpollEvent
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, &ev)
}

// Run blocks forever, servicing ready fds and sweeping idle connections
// after each batch. The wait wakes at least once per idle timeout, so the
// sweep also runs when no fd is ready. It returns only on an
// unrecoverable epoll error.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, maxEvents)
	waitMs := int(r.opts.ClientIdleTimeout / time.Millisecond)
	if waitMs < 1 {
		waitMs = 1
	}

	for {
		n, err := unix.EpollWait(r.epfd, events, waitMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			mask := events[i].Events

			if key, isListener := r.fdToKey[fd]; isListener {
				r.acceptLoop(fd, key)
				continue
			}

			cl, ok := r.clients[fd]
			if !ok {
				continue
			}

			if mask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				r.closeClient(cl)
				continue
			}
			if mask&unix.EPOLLIN != 0 {
				r.handleReadable(cl)
			}
			if cl2, stillOpen := r.clients[fd]; stillOpen && mask&unix.EPOLLOUT != 0 {
				r.handleWritable(cl2)
			}
		}

		r.sweepIdle()
	}
}

// acceptLoop drains the accept queue for one listening socket, declining
// silently once the configured connection cap is reached.
func (r *Reactor) acceptLoop(listenFD int, key config.SocketKey) {
	sock := r.sockets[key]
	for {
		fd, peer, err := sock.Accept()
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			r.log.Warnw("accept failed", "error", err)
			return
		}

		if len(r.clients) >= r.opts.MaxConnections {
			unix.Close(fd)
			continue
		}

		cl := client.New(fd, peer, key, time.Now())
		cl.Request = httpreq.New(r.resolver.ForSocket(key))
		r.clients[fd] = cl
		r.log.Debugw("accepted connection", "conn_id", cl.ID, "peer", peer)
		if err := r.registerRead(fd); err != nil {
			r.log.Warnw("epoll_ctl add client failed", "conn_id", cl.ID, "error", err)
			delete(r.clients, fd)
			unix.Close(fd)
		}
	}
}

// handleReadable feeds up to requestReadSize bytes to the parser and, if
// the request is complete, builds the response and flips the fd to
// writable.
func (r *Reactor) handleReadable(cl *client.Client) {
	buf := make([]byte, requestReadSize)
	n, err := unix.Read(cl.FD, buf)
	if n > 0 {
		cl.Touch(time.Now())
		cl.Request.Feed(buf[:n])
	}
	if err != nil && err != unix.EAGAIN {
		r.closeClient(cl)
		return
	}
	if n == 0 && err == nil {
		r.closeClient(cl)
		return
	}

	if cl.Request.Done() {
		sb, _ := cl.Request.ServerBlock.(*config.ServerBlock)
		resp := response.Build(cl.Request, sb, cl.PeerAddr)
		cl.PendingWrite = resp.Serialized
		cl.KeepAlive = resp.Connection == "keep-alive"
		r.log.Debugw("response built", "conn_id", cl.ID, "status", resp.Status,
			"size", humanize.Bytes(uint64(len(resp.Serialized))))
		if resp.Status == 413 {
			r.log.Infow("request body exceeded cap", "conn_id", cl.ID,
				"size", humanize.Bytes(uint64(len(cl.Request.Body))))
		}
		if err := r.modify(cl.FD, unix.EPOLLOUT); err != nil {
			r.closeClient(cl)
		}
	}
}

// handleWritable drains up to responseWriteSize bytes of the pending
// response; once fully drained it either resets for the next keep-alive
// message or closes the connection.
func (r *Reactor) handleWritable(cl *client.Client) {
	chunk := cl.PendingWrite
	if len(chunk) > responseWriteSize {
		chunk = chunk[:responseWriteSize]
	}
	n, err := unix.Write(cl.FD, chunk)
	if err != nil && err != unix.EAGAIN {
		r.closeClient(cl)
		return
	}
	cl.PendingWrite = cl.PendingWrite[n:]
	if len(cl.PendingWrite) > 0 {
		return
	}

	if cl.KeepAlive {
		cl.Reset(r.resolver.ForSocket(cl.SocketKey))
		if err := r.modify(cl.FD, unix.EPOLLIN); err != nil {
			r.closeClient(cl)
		}
		return
	}
	r.closeClient(cl)
}

// sweepIdle closes connections that have been idle past the configured
// client idle timeout.
func (r *Reactor) sweepIdle() {
	now := time.Now()
	for _, cl := range r.clients {
		if cl.IdleFor(now) > r.opts.ClientIdleTimeout {
			r.closeClient(cl)
		}
	}
}

func (r *Reactor) closeClient(cl *client.Client) {
	r.log.Debugw("closing connection", "conn_id", cl.ID)
	r.deregister(cl.FD)
	unix.Close(cl.FD)
	delete(r.clients, cl.FD)
}

// Close releases the epoll fd and every listening socket, for orderly
// shutdown in tests and signal handlers.
func (r *Reactor) Close() {
	for _, sock := range r.sockets {
		sock.Close()
	}
	unix.Close(r.epfd)
}
