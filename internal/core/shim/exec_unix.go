//go:build !windows

package shim

import "golang.org/x/sys/unix"

func execProcess(path string, argv []string, env []string) error {
	return unix.Exec(path, argv, env)
}
