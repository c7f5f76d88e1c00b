//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package sock

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseAddr splits "network://address". Without a scheme the network is tcp.
func ParseAddr(addr string) (network, address string) {
	network, address = "tcp", addr
	if i := strings.Index(addr, "://"); i >= 0 {
		network, address = addr[:i], addr[i+3:]
	}
	return
}

// resolve turns an address into a sockaddr and its family. An empty host
// binds the IPv4 wildcard.
func resolve(network, address string) (unix.Sockaddr, int, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
		a, err := net.ResolveTCPAddr(network, address)
		if err != nil {
			return nil, 0, err
		}
		sa, family := inet(a.IP, a.Port)
		return sa, family, nil
	case "udp", "udp4", "udp6":
		a, err := net.ResolveUDPAddr(network, address)
		if err != nil {
			return nil, 0, err
		}
		sa, family := inet(a.IP, a.Port)
		return sa, family, nil
	case "unix", "unixgram":
		return &unix.SockaddrUnix{Name: address}, unix.AF_UNIX, nil
	}
	return nil, 0, fmt.Errorf("sock: unknown network %q", network)
}

func inet(ip net.IP, port int) (unix.Sockaddr, int) {
	if ip == nil {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}

// String formats a sockaddr as host:port, or the path of a unix socket.
func String(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrUnix:
		return sa.Name
	}
	return ""
}

// Sockname returns the local address fd is bound to.
func Sockname(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", fmt.Errorf("getsockname: %w", err)
	}
	return String(sa), nil
}
