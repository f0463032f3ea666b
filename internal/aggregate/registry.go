package aggregate

import (
	"fmt"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
)

// Kind is the lifecycle step a command performs.
type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindDelete
)

// Decider turns a command into events given the current state.
type Decider func(s State, cmd command.Command) ([]event.Event, error)

// Route binds a command type to its aggregate type and decider.
type Route struct {
	Aggregate event.AggregateType
	Kind      Kind
	Decide    Decider
}

// Registry is the explicit command and state table used by the gateway.
type Registry struct {
	routes map[command.Type]Route
	states map[event.AggregateType]func() State
}

// NewRegistry returns a registry with every cinema aggregate registered.
func NewRegistry() *Registry {
	r := &Registry{
		routes: make(map[command.Type]Route),
		states: make(map[event.AggregateType]func() State),
	}

	r.state(event.AggregateCinema, func() State { return &Cinema{} })
	r.route(command.CreateCinema, event.AggregateCinema, KindCreate, decider(createCinema))
	r.route(command.UpdateCinema, event.AggregateCinema, KindUpdate, decider(updateCinema))
	r.route(command.DeleteCinema, event.AggregateCinema, KindDelete, decider(deleteCinema))

	r.state(event.AggregateMovie, func() State { return &Movie{} })
	r.route(command.CreateMovie, event.AggregateMovie, KindCreate, decider(createMovie))
	r.route(command.UpdateMovie, event.AggregateMovie, KindUpdate, decider(updateMovie))
	r.route(command.DeleteMovie, event.AggregateMovie, KindDelete, decider(deleteMovie))

	r.state(event.AggregateSeat, func() State { return &Seat{} })
	r.route(command.CreateSeat, event.AggregateSeat, KindCreate, decider(createSeat))
	r.route(command.UpdateSeat, event.AggregateSeat, KindUpdate, decider(updateSeat))
	r.route(command.DeleteSeat, event.AggregateSeat, KindDelete, decider(deleteSeat))

	r.state(event.AggregateShowTime, func() State { return &ShowTime{} })
	r.route(command.CreateShowTime, event.AggregateShowTime, KindCreate, decider(createShowTime))
	r.route(command.UpdateShowTime, event.AggregateShowTime, KindUpdate, decider(updateShowTime))
	r.route(command.DeleteShowTime, event.AggregateShowTime, KindDelete, decider(deleteShowTime))

	r.state(event.AggregateEmployee, func() State { return &Employee{} })
	r.route(command.CreateEmployee, event.AggregateEmployee, KindCreate, decider(createEmployee))
	r.route(command.UpdateEmployee, event.AggregateEmployee, KindUpdate, decider(updateEmployee))
	r.route(command.DeleteEmployee, event.AggregateEmployee, KindDelete, decider(deleteEmployee))

	r.state(event.AggregateWorkShift, func() State { return &WorkShift{} })
	r.route(command.CreateWorkShift, event.AggregateWorkShift, KindCreate, decider(createWorkShift))
	r.route(command.UpdateWorkShift, event.AggregateWorkShift, KindUpdate, decider(updateWorkShift))
	r.route(command.DeleteWorkShift, event.AggregateWorkShift, KindDelete, decider(deleteWorkShift))

	return r
}

func (r *Registry) state(t event.AggregateType, fn func() State) {
	if _, dup := r.states[t]; dup {
		panic(fmt.Sprintf("aggregate: duplicate state %q", t))
	}
	r.states[t] = fn
}

func (r *Registry) route(t command.Type, at event.AggregateType, kind Kind, d Decider) {
	if _, dup := r.routes[t]; dup {
		panic(fmt.Sprintf("aggregate: duplicate route %q", t))
	}
	r.routes[t] = Route{Aggregate: at, Kind: kind, Decide: d}
}

// Route looks up the registration for a command type.
func (r *Registry) Route(t command.Type) (Route, error) {
	rt, ok := r.routes[t]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownCommand, t)
	}
	return rt, nil
}

// NewState returns an empty state for an aggregate type.
func (r *Registry) NewState(t event.AggregateType) (State, error) {
	fn, ok := r.states[t]
	if !ok {
		return nil, fmt.Errorf("%w: aggregate type %q", ErrUnknownCommand, t)
	}
	return fn(), nil
}

// Decide enforces the lifecycle for cmd and runs the entity rule.
func (r *Registry) Decide(s State, cmd command.Command) ([]event.Event, error) {
	rt, err := r.Route(cmd.Type)
	if err != nil {
		return nil, err
	}

	if err := checkLifecycle(s.Base().Status, rt.Kind); err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd.Type, cmd.TargetID, err)
	}

	return rt.Decide(s, cmd)
}

func checkLifecycle(status Status, kind Kind) error {
	switch kind {
	case KindCreate:
		switch status {
		case Active:
			return ErrAlreadyExists
		case Deleted:
			return ErrNotExists
		}
	default:
		if status != Active {
			return ErrNotExists
		}
	}
	return nil
}

// decider adapts a typed entity rule to the Decider signature.
func decider[S State, P any](fn func(S, P) ([]event.Event, error)) Decider {
	return func(s State, cmd command.Command) ([]event.Event, error) {
		st, ok := s.(S)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot target %T", ErrUnknownCommand, cmd.Type, s)
		}

		var p P
		switch v := cmd.Payload.(type) {
		case nil:
		case P:
			p = v
		case *P:
			if v != nil {
				p = *v
			}
		default:
			return nil, invalid("payload", fmt.Sprintf("unexpected %T for %s", cmd.Payload, cmd.Type))
		}

		return fn(st, p)
	}
}
