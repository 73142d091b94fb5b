/*
Package application is a library for building the keywitness servers
and clients: the publisher, the witnesses, and verifying clients.

# Encoding

Clients and servers exchange one JSON message per connection: a
protocol.Request answered by a protocol.Response. Peers exchange
protocol.Message values the same way.

# Configuration

Every executable reads a TOML config through an AppConfig. Key files,
the committee file and TLS certificates are resolved relative to the
config file.

# ServerBase

ServerBase listens on tcp (always TLS) and unix addresses, checks that
each request type is permitted on the address it arrived at, and
reloads policies on SIGUSR2.
*/
package application
