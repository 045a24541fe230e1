package ports

import (
	"context"
	"sort"

	gopsnet "github.com/shirou/gopsutil/net"
	gopsprocess "github.com/shirou/gopsutil/process"
)

// Owner is a process holding a socket on a local port. PID 0 means the owner
// could not be identified, typically because it belongs to another user.
type Owner struct {
	PID  int
	Name string
}

// OwnerFinder looks up the processes bound to a local TCP port
type OwnerFinder interface {
	Owners(ctx context.Context, port int) ([]Owner, error)
}

// NewOwnerFinder returns a finder backed by the OS socket tables
func NewOwnerFinder() OwnerFinder {
	return &netOwnerFinder{}
}

type netOwnerFinder struct{}

func (f *netOwnerFinder) Owners(ctx context.Context, port int) ([]Owner, error) {
	connections, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	return portOwners(connections, port, func(pid int32) string {
		return processName(ctx, pid)
	}), nil
}

// portOwners picks the distinct processes holding the local side of port.
// A socket without a PID only counts while it is listening. Closed connections
// linger in the kernel (TIME_WAIT, LAST_ACK, FIN_WAIT) with no process behind them.
func portOwners(connections []gopsnet.ConnectionStat, port int, name func(pid int32) string) []Owner {
	seen := make(map[int32]bool)
	var owners []Owner
	for _, connection := range connections {
		// Only the local side counts, clients talking to the port are left alone
		if int(connection.Laddr.Port) != port {
			continue
		}
		if connection.Pid <= 0 && connection.Status != "LISTEN" {
			continue
		}
		if seen[connection.Pid] {
			continue
		}
		seen[connection.Pid] = true
		owners = append(owners, Owner{
			PID:  int(connection.Pid),
			Name: name(connection.Pid),
		})
	}

	sort.Slice(owners, func(i, j int) bool { return owners[i].PID < owners[j].PID })
	return owners
}

func processName(ctx context.Context, pid int32) string {
	if pid <= 0 {
		return ""
	}
	p, err := gopsprocess.NewProcess(pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
