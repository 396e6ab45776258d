//go:build unix && !linux

package acceptor

import "golang.org/x/sys/unix"

// Platforms without a SOCK_CLOEXEC fast path mark descriptors
// close-on-exec in a separate step after creation.

func sysSocket(family int) (int, error) {
	s, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(s)
	return s, nil
}

func sysAccept(lfd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(lfd)
	if err != nil {
		return -1, nil, err
	}
	unix.CloseOnExec(nfd)
	return nfd, sa, nil
}
