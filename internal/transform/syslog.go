package transform

import (
	"regexp"
	"strconv"
	"strings"
)

// syslogPattern matches an RFC3164-style syslog line:
//
//	<PRI>Mon DD HH:MM:SS host tag[pid]: message
//
// The priority header is optional; host/tag/pid are best-effort. Anything
// that doesn't match at all yields no fields, causing decodeSyslog to
// leave the document as it already was (spec §4.B decode-stage contract:
// a failing decoder never aborts the line).
var syslogPattern = regexp.MustCompile(
	`^(?:<(\d+)>)?` +
		`(\w{3}\s+\d{1,2}\s\d{2}:\d{2}:\d{2})\s+` +
		`(\S+)\s+` +
		`([\w.\-/]+?)(?:\[(\d+)\])?:\s*` +
		`(.*)$`,
)

// parseSyslog returns a flat key/value map for a syslog-shaped line, or
// nil if the line doesn't match the expected header shape.
func parseSyslog(line string) map[string]interface{} {
	m := syslogPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	fields := map[string]interface{}{
		"timestamp": strings.TrimSpace(m[2]),
		"host":      m[3],
		"tag":       m[4],
		"message":   m[6],
	}
	if m[1] != "" {
		if pri, err := strconv.Atoi(m[1]); err == nil {
			fields["facility"] = pri / 8
			fields["severity"] = pri % 8
		}
	}
	if m[5] != "" {
		fields["pid"] = m[5]
	}
	return fields
}
