package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Number is a float that also decodes from strings such as "12", "12px" or
// "1.5cm". Anything unparseable decodes to zero instead of failing the
// whole template.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*n = 0
		return nil
	}
	s = strings.TrimSpace(strings.ToLower(s))
	for _, suffix := range []string{"px", "pt", "cm", "mm", "em"} {
		s = strings.TrimSuffix(s, suffix)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		f = 0
	}
	*n = Number(f)
	return nil
}

func (n Number) Float() float64 { return float64(n) }
