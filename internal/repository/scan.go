package repository

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// decimals parses numeric columns selected as ::text so no precision is lost
// between Postgres and the PnL arithmetic.
func decimals(texts ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(texts))
	for i, s := range texts {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", s, err)
		}
		out[i] = d
	}
	return out, nil
}
