package oms

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order and trade identifiers carry the execution date plus a random
// suffix, e.g. ORD_20240314_1A2B3C4D.

func newOrderID(at time.Time) string {
	return fmt.Sprintf("ORD_%s_%s", at.Format("20060102"), idSuffix())
}

func newTradeID(at time.Time) string {
	return fmt.Sprintf("TRD_%s_%s", at.Format("20060102"), idSuffix())
}

func idSuffix() string {
	return strings.ToUpper(uuid.New().String()[:8])
}
