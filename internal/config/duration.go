package config

import (
	"encoding/json"
	"time"

	"github.com/vango-dev/readyroom/internal/errors"
)

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.New("E103").WithDetail(string(data)).Wrap(err)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("E103").WithDetail(s).Wrap(err)
	}
	*d = Duration(v)
	return nil
}
