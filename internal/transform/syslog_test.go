package transform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSyslogWithPriority(t *testing.T) {
	fields := parseSyslog(`<34>Oct 11 22:14:15 myhost su[1234]: failed login`)
	require.NotNil(t, fields)
	require.Equal(t, "myhost", fields["host"])
	require.Equal(t, "su", fields["tag"])
	require.Equal(t, "1234", fields["pid"])
	require.Equal(t, "failed login", fields["message"])
	require.Equal(t, 4, fields["facility"])
	require.Equal(t, 2, fields["severity"])
}

func TestParseSyslogWithoutPriorityOrPID(t *testing.T) {
	fields := parseSyslog(`Oct 11 22:14:15 myhost sshd: connection closed`)
	require.NotNil(t, fields)
	require.Equal(t, "sshd", fields["tag"])
	_, hasPID := fields["pid"]
	require.False(t, hasPID)
	_, hasFacility := fields["facility"]
	require.False(t, hasFacility)
}

func TestParseSyslogNoMatch(t *testing.T) {
	require.Nil(t, parseSyslog("not a syslog line at all"))
}
