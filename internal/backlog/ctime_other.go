//go:build !linux

package backlog

import (
	"os"
	"time"
)

// ctime falls back to ModTime on platforms without a syscall.Stat_t.Ctim
// field; oldest-first eviction order is unaffected by processes that
// never modify a backlog file after writing it.
func ctime(info os.FileInfo) time.Time {
	return info.ModTime()
}
