package model

import "fmt"

// Side is the direction of a raw fill as reported by an exchange.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes an exchange-reported side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an exit fill is matched against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	return string(s)
}

// PositionSide classifies a realized trade by the direction of the
// position it closed.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

func (p PositionSide) Valid() bool {
	return p == PositionLong || p == PositionShort
}

func (p PositionSide) String() string {
	return string(p)
}

// PositionFromExit maps the side of a closing fill to the position it
// unwinds: selling closes a long, buying closes a short.
func PositionFromExit(exitSide Side) PositionSide {
	if exitSide == SideSell {
		return PositionLong
	}
	return PositionShort
}
