package docker

import "github.com/r2northstar/startrek/pkg/ship"

// Status mirrors a Connection's state as seen from the Docker side,
// per the mapping in spec.md §4.7: {Ready -> Ready; Preparing ->
// Preparing; Expired/Maintaining -> Ready (alive); Error/Default ->
// Error/Init}.
type Status int

const (
	StatusInit Status = iota
	StatusPreparing
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusPreparing:
		return "preparing"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Delegate is the DockerDelegate interface of spec.md §6.
type Delegate interface {
	OnArrival(d *Docker, arrival ship.Arrival)
	OnSent(d *Docker, departure ship.Departure)
	OnFailedToSend(d *Docker, departure ship.Departure, err error)
	OnSending(d *Docker, departure ship.Departure, err error)
	OnStatusChanged(d *Docker, prev, curr Status)
}

// NopDelegate implements Delegate with no-ops.
type NopDelegate struct{}

func (NopDelegate) OnArrival(*Docker, ship.Arrival)                 {}
func (NopDelegate) OnSent(*Docker, ship.Departure)                  {}
func (NopDelegate) OnFailedToSend(*Docker, ship.Departure, error)    {}
func (NopDelegate) OnSending(*Docker, ship.Departure, error)         {}
func (NopDelegate) OnStatusChanged(*Docker, Status, Status)          {}
