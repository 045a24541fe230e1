package ports

import (
	"strconv"
	"testing"

	gopsnet "github.com/shirou/gopsutil/net"
	"github.com/stretchr/testify/assert"
)

func connection(port uint32, status string, pid int32) gopsnet.ConnectionStat {
	return gopsnet.ConnectionStat{
		Laddr:  gopsnet.Addr{IP: "127.0.0.1", Port: port},
		Status: status,
		Pid:    pid,
	}
}

func TestPortOwners(t *testing.T) {
	name := func(pid int32) string { return "proc-" + strconv.Itoa(int(pid)) }

	tests := []struct {
		name        string
		connections []gopsnet.ConnectionStat
		expected    []Owner
	}{
		{
			name:        "listener",
			connections: []gopsnet.ConnectionStat{connection(9100, "LISTEN", 42)},
			expected:    []Owner{{PID: 42, Name: "proc-42"}},
		},
		{
			name: "accepted connections of the listener collapse into one owner",
			connections: []gopsnet.ConnectionStat{
				connection(9100, "ESTABLISHED", 42),
				connection(9100, "LISTEN", 42),
			},
			expected: []Owner{{PID: 42, Name: "proc-42"}},
		},
		{
			name: "closed connections without a process are ignored",
			connections: []gopsnet.ConnectionStat{
				connection(9100, "TIME_WAIT", 0),
				connection(9100, "LAST_ACK", 0),
				connection(9100, "FIN_WAIT2", 0),
				connection(9100, "CLOSING", 0),
			},
			expected: nil,
		},
		{
			name:        "listener of another user is unidentified",
			connections: []gopsnet.ConnectionStat{connection(9100, "LISTEN", 0)},
			expected:    []Owner{{PID: 0, Name: "proc-0"}},
		},
		{
			name: "other ports are ignored",
			connections: []gopsnet.ConnectionStat{
				connection(9101, "LISTEN", 7),
				{Laddr: gopsnet.Addr{IP: "127.0.0.1", Port: 51000}, Raddr: gopsnet.Addr{IP: "127.0.0.1", Port: 9100}, Status: "ESTABLISHED", Pid: 8},
			},
			expected: nil,
		},
		{
			name: "owners are sorted by PID",
			connections: []gopsnet.ConnectionStat{
				connection(9100, "LISTEN", 77),
				connection(9100, "LISTEN", 12),
			},
			expected: []Owner{{PID: 12, Name: "proc-12"}, {PID: 77, Name: "proc-77"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, portOwners(tt.connections, 9100, name))
		})
	}
}
