package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleNumber accepts a JSON number or a numeric string (HTML number
// inputs post strings) and writes a JSON number back when it can.
type FlexibleNumber string

func (fn *FlexibleNumber) UnmarshalJSON(data []byte) error {
	if fn == nil {
		return fmt.Errorf("FlexibleNumber: nil receiver")
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*fn = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*fn = FlexibleNumber(strings.TrimSpace(s))
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		*fn = FlexibleNumber(num.String())
		return nil
	}

	return fmt.Errorf("FlexibleNumber: expected string or number, got %s", string(data))
}

func (fn FlexibleNumber) MarshalJSON() ([]byte, error) {
	s := string(fn)
	if s == "" {
		return []byte("null"), nil
	}
	var f float64
	if s != "null" && json.Unmarshal([]byte(s), &f) == nil {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// Float parses the value; a decimal comma is accepted.
func (fn FlexibleNumber) Float() (float64, error) {
	return strconv.ParseFloat(strings.Replace(string(fn), ",", ".", 1), 64)
}

func (fn FlexibleNumber) String() string {
	return string(fn)
}
