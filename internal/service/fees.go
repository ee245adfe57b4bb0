package service

// FeePolicy computes the service fee of an order from its ticket subtotal.
// The fee is PerTicketCents for every seat plus PercentBps basis points of
// the subtotal, rounded down.
type FeePolicy struct {
	PercentBps     int64
	PerTicketCents int64
}

// Fee returns the service fee for tickets seats costing subtotal in total.
func (p FeePolicy) Fee(subtotal int64, tickets int) int64 {
	fee := p.PerTicketCents * int64(tickets)
	if p.PercentBps > 0 {
		fee += subtotal * p.PercentBps / 10000
	}
	if fee < 0 {
		return 0
	}
	return fee
}
