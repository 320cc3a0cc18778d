// +build linux darwin freebsd

package main

import (
	"os/signal"
	"syscall"
)

func init() {
	signal.Ignore(syscall.SIGPIPE)
}
