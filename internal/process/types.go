package process

// SortKey selects the ordering of a process listing
type SortKey string

const (
	SortCPU    SortKey = "cpu"
	SortMemory SortKey = "memory"
	SortName   SortKey = "name"
)

// Valid reports whether k is a known sort key
func (k SortKey) Valid() bool {
	switch k {
	case SortCPU, SortMemory, SortName:
		return true
	}
	return false
}

// Info is one row of the top-process table
type Info struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Status        string  `json:"status"`
}

// List is a sorted, truncated process listing
type List struct {
	Processes []Info `json:"processes"`
	// Total is the number of processes that could be inspected.
	Total int `json:"total"`
	// Denied counts processes skipped because their details were not readable.
	Denied int `json:"denied"`
}
