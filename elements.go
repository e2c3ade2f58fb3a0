package main

import (
	"iter"
	"strings"
)

// Element is one of the six elements the promo rotates through
type Element string

const (
	ElementFire  Element = "fire"
	ElementWater Element = "water"
	ElementEarth Element = "earth"
	ElementWind  Element = "wind"
	ElementLight Element = "light"
	ElementDark  Element = "dark"
)

var elementCycle = []Element{ElementFire, ElementWater, ElementEarth, ElementWind, ElementLight, ElementDark}

// ParseElement accepts an element name in any case
func ParseElement(s string) (Element, error) {
	e := Element(strings.ToLower(strings.TrimSpace(s)))
	if elementIndex(e) < 0 {
		return "", validationErrorf("unknown element %q", s)
	}
	return e, nil
}

func elementIndex(e Element) int {
	for i, c := range elementCycle {
		if c == e {
			return i
		}
	}
	return -1
}

// ElementDay is one row of an element rotation. Right is 0 when the rotation
// has a single banner group.
type ElementDay struct {
	Offset  int
	Element Element
	Left    int
	Right   int
}

// ElementDays yields count days starting at start, advancing one element per
// day and wrapping after dark. The sequence is derived from its arguments only,
// so ranging over it again yields the same rows.
func ElementDays(start Element, count int, double bool) iter.Seq[ElementDay] {
	first := max(elementIndex(start), 0)
	return func(yield func(ElementDay) bool) {
		for i := 0; i < count; i++ {
			day := ElementDay{
				Offset:  i,
				Element: elementCycle[(first+i)%len(elementCycle)],
				Left:    i + 1,
			}
			if double {
				day.Right = i + 1
			}
			if !yield(day) {
				return
			}
		}
	}
}
