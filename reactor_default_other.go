//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package reactor

// Platforms without epoll or kqueue fall back to select where it is compiled
// in; elsewhere (windows) NewLoop reports ErrUnsupported.
const defaultBackend = BackendSelect
