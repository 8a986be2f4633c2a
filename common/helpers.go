package common

import "os/user"

// IsRunningAsRoot is used to decide whether privileged commands need sudo.
func IsRunningAsRoot() bool {
	usr, err := user.Current()
	if err != nil {
		return false
	}
	return usr.Username == "root"
}
