package api

import "errors"

var (
	errBadMonth  = errors.New("month must be a number between 1 and 12")
	errBadYear   = errors.New("year must be a number between 2000 and the current year")
	errNoWallets = errors.New("request must name at least one wallet")
)
