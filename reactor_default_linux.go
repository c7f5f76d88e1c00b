//go:build linux

package reactor

const defaultBackend = BackendEpoll
