//go:build linux

package backlog

import (
	"os"
	"syscall"
	"time"
)

// ctime returns the inode change time of a backlog file, used by Reclaim
// to delete oldest-first (spec §4.E). Falls back to ModTime if the
// underlying Sys() isn't a *syscall.Stat_t.
func ctime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
