package application

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

// MaxMessageSize bounds what a server reads from one connection.
// History proofs over long epoch ranges are the largest messages.
const MaxMessageSize = 4 << 20

// ConnDeadline is how long a connection may stay open.
const ConnDeadline = 5 * time.Second

// ErrUnknownNetwork is returned for an address that is neither tcp://
// nor unix://.
var ErrUnknownNetwork = errors.New("[keywitness] Unknown network type")

// A ServerAddress describes a server's connection.
// It supports two types of connections: a TCP connection ("tcp")
// and a Unix socket connection ("unix").
//
// Additionally, TCP connections must use TLS for added security,
// and each is required to specify a TLS certificate and corresponding
// private key.
type ServerAddress struct {
	// Address is formatted as a url: scheme://address.
	Address string `toml:"address"`
	// TLSCertPath is a path to the server's TLS Certificate,
	// which has to be set if the connection is TCP.
	TLSCertPath string `toml:"cert,omitempty"`
	// TLSKeyPath is a path to the server's TLS private key,
	// which has to be set if the connection is TCP.
	TLSKeyPath string `toml:"key,omitempty"`
}

// ResolvePaths makes the TLS file paths relative to the config file.
func (addr *ServerAddress) ResolvePaths(file string) {
	if addr.TLSCertPath != "" {
		addr.TLSCertPath = utils.ResolvePath(addr.TLSCertPath, file)
	}
	if addr.TLSKeyPath != "" {
		addr.TLSKeyPath = utils.ResolvePath(addr.TLSKeyPath, file)
	}
}

// Listen opens a listener on addr. TCP listeners serve TLS.
func (addr *ServerAddress) Listen() (net.Listener, error) {
	u, err := url.Parse(addr.Address)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		// force to use TLS
		cer, err := tls.LoadX509KeyPair(addr.TLSCertPath, addr.TLSKeyPath)
		if err != nil {
			return nil, err
		}
		ln, err := net.Listen(u.Scheme, u.Host)
		if err != nil {
			return nil, err
		}
		return tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cer}}), nil
	case "unix":
		return net.Listen(u.Scheme, u.Path)
	}
	return nil, ErrUnknownNetwork
}

// A ConnHandler serves one accepted connection. The connection is
// closed after it returns.
type ConnHandler func(conn net.Conn)

// A ServerBase is the network layer shared by the publisher and the
// witnesses: it accepts connections on any number of addresses, reads
// one JSON message per connection and writes back the handler's
// answer. It also takes care of hot reloading on SIGUSR2 and of
// shutting everything down.
type ServerBase struct {
	Verb           string
	acceptableReqs map[*ServerAddress]map[int]bool

	logger *binutils.Logger
	sync.RWMutex

	stop          chan struct{}
	stopOnce      sync.Once
	waitStop      sync.WaitGroup
	waitCloseConn sync.WaitGroup

	configFilePath string
	configEncoding string
	reloadChan     chan os.Signal
}

// NewServerBase creates a new server base. perms lists, per client
// address, the request types accepted there.
func NewServerBase(conf *CommonConfig, listenVerb string,
	perms map[*ServerAddress]map[int]bool) *ServerBase {
	sb := new(ServerBase)
	sb.Verb = listenVerb
	sb.acceptableReqs = perms
	sb.logger = binutils.NewLogger(conf.Logger)
	sb.stop = make(chan struct{})
	sb.configFilePath = conf.Path
	sb.configEncoding = conf.Encoding
	sb.reloadChan = make(chan os.Signal, 1)
	signal.Notify(sb.reloadChan, syscall.SIGUSR2)
	return sb
}

// ListenAndServe accepts connections on addr in the background and
// hands each to handle.
func (sb *ServerBase) ListenAndServe(addr *ServerAddress, handle ConnHandler) error {
	ln, err := addr.Listen()
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr.Address, err)
	}
	sb.waitStop.Add(1)
	go func() {
		defer sb.waitStop.Done()
		sb.logger.Info(sb.Verb, "address", addr.Address)
		sb.accept(ln, handle)
	}()
	return nil
}

// ListenAndHandle serves client requests on addr. Requests of a type
// addr does not permit are answered with ErrMalformedMessage.
func (sb *ServerBase) ListenAndHandle(addr *ServerAddress,
	reqHandler func(req *protocol.Request) *protocol.Response) error {
	return sb.ListenAndServe(addr, func(conn net.Conn) {
		sb.acceptClient(addr, conn, reqHandler)
	})
}

func (sb *ServerBase) accept(ln net.Listener, handle ConnHandler) {
	go func() {
		<-sb.stop
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-sb.stop:
				sb.waitCloseConn.Wait()
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			sb.logger.Error(err.Error())
			continue
		}
		sb.waitCloseConn.Add(1)
		go func() {
			defer sb.waitCloseConn.Done()
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(ConnDeadline))
			handle(conn)
		}()
	}
}

// ReadMessage reads everything the peer writes until it closes its
// side, up to MaxMessageSize.
func ReadMessage(conn net.Conn) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(conn, MaxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxMessageSize {
		return nil, protocol.ErrMalformedMessage
	}
	return b, nil
}

// checkRequestType verifies that the server is allowed to handle
// the given Request message type at the given address.
func (sb *ServerBase) checkRequestType(addr *ServerAddress,
	reqType int) error {
	if !sb.acceptableReqs[addr][reqType] {
		sb.logger.Error("Unacceptable message type",
			"request type", reqType)
		return protocol.ErrMalformedMessage
	}
	return nil
}

func (sb *ServerBase) acceptClient(addr *ServerAddress, conn net.Conn,
	handler func(req *protocol.Request) *protocol.Response) {
	var response *protocol.Response
	msg, err := ReadMessage(conn)
	if err != nil {
		sb.logger.Error(err.Error(),
			"address", conn.RemoteAddr().String())
		return
	}

	req, err := UnmarshalRequest(msg)
	switch {
	case err != nil:
		response = malformedClientMsg(err)
	case sb.checkRequestType(addr, req.Type) != nil:
		response = malformedClientMsg(nil)
	default:
		// policies may be swapped by a hot reload
		sb.RLock()
		response = handler(req)
		sb.RUnlock()
		if protocol.Errors[response.Error] {
			sb.logger.Warn(response.Error.Error(),
				"address", conn.RemoteAddr().String())
		}
	}

	res, err := MarshalResponse(response)
	if err != nil {
		panic(err)
	}
	if _, err = conn.Write(res); err != nil {
		sb.logger.Error(err.Error(),
			"address", conn.RemoteAddr().String())
	}
}

// RunInBackground creates a new goroutine that calls function `f`.
// Shutdown waits for it to return.
func (sb *ServerBase) RunInBackground(f func()) {
	sb.waitStop.Add(1)
	go func() {
		f()
		sb.waitStop.Done()
	}()
}

// Stopped is closed when the server shuts down.
func (sb *ServerBase) Stopped() <-chan struct{} {
	return sb.stop
}

// HotReload runs f under the write lock on every SIGUSR2 until the
// server shuts down.
func (sb *ServerBase) HotReload(f func()) {
	for {
		select {
		case <-sb.stop:
			return
		case <-sb.reloadChan:
			sb.Lock()
			f()
			sb.Unlock()
		}
	}
}

// Logger returns the server base's logger instance.
func (sb *ServerBase) Logger() *binutils.Logger {
	return sb.logger
}

// ConfigInfo returns the server base's config file path and encoding.
func (sb *ServerBase) ConfigInfo() (string, string) {
	return sb.configFilePath, sb.configEncoding
}

// Shutdown closes all of the server's listeners, waits for open
// connections and background tasks, and returns.
func (sb *ServerBase) Shutdown() error {
	sb.stopOnce.Do(func() {
		signal.Stop(sb.reloadChan)
		close(sb.stop)
	})
	sb.waitStop.Wait()
	sb.logger.Sync()
	return nil
}
