//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

const defaultBackend = BackendKqueue
