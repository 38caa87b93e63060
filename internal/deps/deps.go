package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external program the pipeline runs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the result of looking a Requirement up on PATH.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Path is the resolved executable when Available.
	Path   string
	Detail string
}

// Satisfied reports whether the requirement does not block startup.
func (s Status) Satisfied() bool {
	return s.Available || s.Optional
}

// Check resolves a single requirement.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// CheckBinaries resolves every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}

// MissingRequired returns the statuses that are not Satisfied.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Satisfied() {
			missing = append(missing, status)
		}
	}
	return missing
}
