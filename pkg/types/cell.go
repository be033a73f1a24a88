package types

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
)

// Strategy names a spatial indexing strategy.
type Strategy string

const (
	StrategyHex    Strategy = "hex"
	StrategySquare Strategy = "square"
)

// Resolution is the granularity of a strategy. For hex it is an integral H3
// resolution in [0, 15]; for square it is the cell edge length in degrees.
type Resolution float64

// IsIntegral reports whether the resolution carries no fractional part.
func (r Resolution) IsIntegral() bool {
	return float64(r) == math.Trunc(float64(r))
}

// Int returns the resolution truncated to an int.
func (r Resolution) Int() int { return int(r) }

// String renders the resolution without trailing zeros.
func (r Resolution) String() string {
	return strconv.FormatFloat(float64(r), 'g', -1, 64)
}

// CellID identifies a cell under one strategy. It is comparable and can be used as a map key.
// Hex cells carry their H3 index in Token; square cells carry grid coordinates in X and Y.
type CellID struct {
	Strategy Strategy   `json:"strategy"`
	Res      Resolution `json:"res"`
	Token    uint64     `json:"token,omitempty"`
	X        int64      `json:"x,omitempty"`
	Y        int64      `json:"y,omitempty"`
}

// HexCell builds a hex cell identifier.
func HexCell(token uint64, res int) CellID {
	return CellID{Strategy: StrategyHex, Res: Resolution(res), Token: token}
}

// SquareCell builds a square cell identifier.
func SquareCell(x, y int64, size Resolution) CellID {
	return CellID{Strategy: StrategySquare, Res: size, X: x, Y: y}
}

// IsZero reports whether c is the zero value.
func (c CellID) IsZero() bool {
	return c == CellID{}
}

// Key returns the textual cell key stored in the relational hex table.
func (c CellID) Key() string {
	return strconv.FormatUint(c.Token, 16)
}

// String renders the cell for logs and reports.
func (c CellID) String() string {
	switch c.Strategy {
	case StrategyHex:
		return c.Key()
	case StrategySquare:
		return fmt.Sprintf("sq:%s:%d:%d", c.Res, c.X, c.Y)
	default:
		return "cell:invalid"
	}
}

// Compare orders cells by strategy, resolution, token, then grid coordinates.
func (c CellID) Compare(o CellID) int {
	if r := cmp.Compare(c.Strategy, o.Strategy); r != 0 {
		return r
	}
	if r := cmp.Compare(c.Res, o.Res); r != 0 {
		return r
	}
	if r := cmp.Compare(c.Token, o.Token); r != 0 {
		return r
	}
	if r := cmp.Compare(c.X, o.X); r != 0 {
		return r
	}
	return cmp.Compare(c.Y, o.Y)
}
