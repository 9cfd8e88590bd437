package models

import "fmt"

// Status is the lifecycle state shared by jobs and tasks.
type Status string

const (
	StatusInit     Status = "INIT"
	StatusRunning  Status = "RUNNING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailed   Status = "FAILED"
	StatusCanceled Status = "CANCELED"
)

// ValidStatuses lists every recognized status value.
var ValidStatuses = []Status{StatusInit, StatusRunning, StatusSuccess, StatusFailed, StatusCanceled}

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	for _, v := range ValidStatuses {
		if status == v {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether the status can no longer change on its own.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

func (s Status) String() string {
	return string(s)
}
