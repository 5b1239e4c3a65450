package redisx

import "os"

func currentPID() int {
	return os.Getpid()
}
