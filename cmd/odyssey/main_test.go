package main

import (
	"testing"

	_ "github.com/odyssey-erp/odyssey-finance/testing"
)

func TestMainReturnsInTestMode(t *testing.T) {
	main()
}
