package order

// orderState implements the state pattern for order lifecycle transitions.
type orderState interface {
	Status() Status
	OnPaymentPaid(o *Order) (orderState, error)
	OnPaymentCancelled(o *Order) (orderState, error)
	Hold(o *Order) (orderState, error)
	Ship(o *Order) (orderState, error)
	Deliver(o *Order) (orderState, error)
	Cancel(o *Order) (orderState, error)
}

func stateOf(s Status) orderState {
	switch s {
	case StatusOnHold:
		return onHoldState{}
	case StatusProcessing:
		return processingState{}
	case StatusShipped:
		return shippedState{}
	case StatusDelivered:
		return deliveredState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status                                { return StatusPending }
func (pendingState) OnPaymentPaid(*Order) (orderState, error)      { return processingState{}, nil }
func (pendingState) OnPaymentCancelled(*Order) (orderState, error) { return cancelledState{}, nil }
func (pendingState) Hold(*Order) (orderState, error)               { return onHoldState{}, nil }
func (pendingState) Cancel(*Order) (orderState, error)             { return cancelledState{}, nil }

func (pendingState) Ship(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (pendingState) Deliver(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

type onHoldState struct{}

func (onHoldState) Status() Status                                { return StatusOnHold }
func (onHoldState) OnPaymentPaid(*Order) (orderState, error)      { return processingState{}, nil }
func (onHoldState) OnPaymentCancelled(*Order) (orderState, error) { return cancelledState{}, nil }
func (onHoldState) Hold(*Order) (orderState, error)               { return onHoldState{}, nil }
func (onHoldState) Cancel(*Order) (orderState, error)             { return cancelledState{}, nil }

func (onHoldState) Ship(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (onHoldState) Deliver(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

type processingState struct{}

func (processingState) Status() Status                           { return StatusProcessing }
func (processingState) OnPaymentPaid(*Order) (orderState, error) { return processingState{}, nil }
func (processingState) Ship(*Order) (orderState, error)          { return shippedState{}, nil }

func (processingState) OnPaymentCancelled(*Order) (orderState, error) {
	return processingState{}, nil
}

func (processingState) Hold(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (processingState) Deliver(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (processingState) Cancel(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

type shippedState struct{}

func (shippedState) Status() Status                           { return StatusShipped }
func (shippedState) OnPaymentPaid(*Order) (orderState, error) { return shippedState{}, nil }
func (shippedState) Ship(*Order) (orderState, error)          { return shippedState{}, nil }
func (shippedState) Deliver(*Order) (orderState, error)       { return deliveredState{}, nil }

func (shippedState) OnPaymentCancelled(*Order) (orderState, error) {
	return shippedState{}, nil
}

func (shippedState) Hold(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (shippedState) Cancel(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

type deliveredState struct{}

func (deliveredState) Status() Status                           { return StatusDelivered }
func (deliveredState) OnPaymentPaid(*Order) (orderState, error) { return deliveredState{}, nil }
func (deliveredState) Deliver(*Order) (orderState, error)       { return deliveredState{}, nil }

func (deliveredState) OnPaymentCancelled(*Order) (orderState, error) {
	return deliveredState{}, nil
}

func (deliveredState) Hold(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (deliveredState) Ship(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (deliveredState) Cancel(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

// A payment captured after cancellation reopens the order for fulfillment.
type cancelledState struct{}

func (cancelledState) Status() Status                                { return StatusCancelled }
func (cancelledState) OnPaymentPaid(*Order) (orderState, error)      { return processingState{}, nil }
func (cancelledState) OnPaymentCancelled(*Order) (orderState, error) { return cancelledState{}, nil }
func (cancelledState) Cancel(*Order) (orderState, error)             { return cancelledState{}, nil }

func (cancelledState) Hold(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (cancelledState) Ship(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (cancelledState) Deliver(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}
