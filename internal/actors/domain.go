// Package actors carries the resolved identity of the caller through a request.
// Authentication itself happens upstream; the gateway forwards the resolved
// account attributes and this package turns them into an Actor once per request.
package actors

import "errors"

// Department is one of the organisational units holding independent stock.
type Department string

const (
	// DeptPharmacy is the central pharmacy inventory.
	DeptPharmacy Department = "PHARMACY"
	// DeptOPD is the outpatient department inventory.
	DeptOPD Department = "OPD"
)

// IsValid reports whether the department is a known unit.
func (d Department) IsValid() bool {
	return d == DeptPharmacy || d == DeptOPD
}

// Actor is the caller identity resolved at the edge. Department and Admin are
// explicit stored attributes of the account, not derived per request.
type Actor struct {
	ID         int64
	Username   string
	FirstName  string
	LastName   string
	Department Department
	Admin      bool
}

// ErrNoActor indicates the request carried no resolved actor.
var ErrNoActor = errors.New("actors: no actor in context")

// ErrUnknownDepartment indicates an unrecognised department value.
var ErrUnknownDepartment = errors.New("actors: unknown department")
