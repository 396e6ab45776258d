//go:build linux

package acceptor

import "golang.org/x/sys/unix"

// sysSocket creates a non-inheritable stream socket.
func sysSocket(family int) (int, error) {
	return unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
}

// sysAccept accepts one connection with the new descriptor already marked
// close-on-exec.
func sysAccept(lfd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(lfd, unix.SOCK_CLOEXEC)
}
