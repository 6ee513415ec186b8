package utils

import (
	"fmt"

	"github.com/jaevor/go-nanoid"
)

const (
	orderNumberPrefix   = "PLT"
	orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	orderNumberLength   = 10
)

var orderNumberGen = mustGenerator()

func mustGenerator() func() string {
	gen, err := nanoid.CustomASCII(orderNumberAlphabet, orderNumberLength)
	if err != nil {
		panic(fmt.Sprintf("order number generator: %v", err))
	}
	return gen
}

// NewOrderNumber returns a short customer-facing reference such as PLT-7KQ2M9XW4D.
func NewOrderNumber() string {
	return orderNumberPrefix + "-" + orderNumberGen()
}
