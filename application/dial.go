package application

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/coniks-sys/keywitness/utils"
)

// A DialConfig describes how to reach a server. For tcp:// addresses
// CACertPath names the PEM certificate the server's TLS certificate
// must chain to. Without one the server is not authenticated.
type DialConfig struct {
	Address    string `toml:"address"`
	CACertPath string `toml:"ca_cert,omitempty"`
}

// ResolvePaths makes the CA certificate path relative to the config
// file.
func (d *DialConfig) ResolvePaths(file string) {
	if d.CACertPath != "" {
		d.CACertPath = utils.ResolvePath(d.CACertPath, file)
	}
}

func (d *DialConfig) tlsConfig() (*tls.Config, error) {
	if d.CACertPath == "" {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	pem, err := os.ReadFile(d.CACertPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("No certificate in %s", d.CACertPath)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// Dial connects to d.Address, wrapping tcp connections in TLS.
func (d *DialConfig) Dial(ctx context.Context) (net.Conn, error) {
	u, err := url.Parse(d.Address)
	if err != nil {
		return nil, err
	}
	var dialer net.Dialer
	switch u.Scheme {
	case "tcp":
		conf, err := d.tlsConfig()
		if err != nil {
			return nil, err
		}
		if conf.RootCAs != nil {
			conf.ServerName = u.Hostname()
		}
		td := &tls.Dialer{NetDialer: &dialer, Config: conf}
		return td.DialContext(ctx, "tcp", u.Host)
	case "unix":
		return dialer.DialContext(ctx, "unix", u.Path)
	}
	return nil, ErrUnknownNetwork
}

// Exchange writes msg to a new connection, closes the writing side
// and reads the reply until the server closes the connection.
func (d *DialConfig) Exchange(ctx context.Context, msg []byte) ([]byte, error) {
	conn, err := d.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(msg); err != nil {
		return nil, err
	}
	if err := closeWrite(conn); err != nil {
		return nil, err
	}
	return ReadMessage(conn)
}

func closeWrite(conn net.Conn) error {
	if c, ok := conn.(interface{ CloseWrite() error }); ok {
		return c.CloseWrite()
	}
	return nil
}
