package processstate

// Exists is IsProcessRunning for call sites that only need a yes/no answer.
// Lookup errors are reported as "not running".
func Exists(pid int) bool {
	running, err := IsProcessRunning(pid)
	return err == nil && running
}
