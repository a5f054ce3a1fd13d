package courier

// Unit is anything with a lifecycle that accessories can observe: a
// *Request, *Batch or *Chain.
type Unit interface {
	ID() string
	State() State
}

// Accessory observes lifecycle points of a unit. Accessories run in
// registration order and must not mutate the unit.
type Accessory interface {
	WillStart(u Unit)
	WillStop(u Unit)
	DidStop(u Unit)
}

// AccessoryFuncs adapts closures to Accessory. Nil fields are skipped.
type AccessoryFuncs struct {
	OnWillStart func(Unit)
	OnWillStop  func(Unit)
	OnDidStop   func(Unit)
}

func (a AccessoryFuncs) WillStart(u Unit) {
	if a.OnWillStart != nil {
		a.OnWillStart(u)
	}
}

func (a AccessoryFuncs) WillStop(u Unit) {
	if a.OnWillStop != nil {
		a.OnWillStop(u)
	}
}

func (a AccessoryFuncs) DidStop(u Unit) {
	if a.OnDidStop != nil {
		a.OnDidStop(u)
	}
}

func willStart(accs []Accessory, u Unit) {
	for _, a := range accs {
		a.WillStart(u)
	}
}

// stopSequence runs WillStop, then fn, then DidStop.
func stopSequence(accs []Accessory, u Unit, fn func()) {
	for _, a := range accs {
		a.WillStop(u)
	}
	if fn != nil {
		fn()
	}
	for _, a := range accs {
		a.DidStop(u)
	}
}
