/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package timers

import (
	"fmt"
	"time"
)

// Domain is the time domain a timer fires in.
type Domain int

const (
	UnknownDomain Domain = iota
	EventTime
	ProcessingTime
	SynchronizedProcessingTime
)

func (d Domain) String() string {
	switch d {
	case EventTime:
		return "EventTime"
	case ProcessingTime:
		return "ProcessingTime"
	case SynchronizedProcessingTime:
		return "SynchronizedProcessingTime"
	default:
		return "Unknown"
	}
}

// Valid returns true for the three known domains.
func (d Domain) Valid() bool {
	return d == EventTime || d == ProcessingTime || d == SynchronizedProcessingTime
}

// ParseDomain returns the Domain for its String form.
func ParseDomain(s string) (Domain, error) {
	for _, d := range []Domain{EventTime, ProcessingTime, SynchronizedProcessingTime} {
		if d.String() == s {
			return d, nil
		}
	}
	return UnknownDomain, fmt.Errorf("unknown timer domain %q", s)
}

func (d Domain) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("unknown timer domain %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Domain) UnmarshalText(text []byte) error {
	parsed, err := ParseDomain(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimerID identifies a timer within a key.
type TimerID struct {
	Domain Domain `json:"domain"`
	ID     string `json:"id"`
}

func (t TimerID) String() string {
	return fmt.Sprintf("%s/%s", t.Domain, t.ID)
}

// TimerData is a request to call back the stage for Key once Timestamp is reached in Domain.
// Within a (Key, Domain) at most one live timer exists per ID.
type TimerData struct {
	Key       string    `json:"key"`
	ID        string    `json:"id"`
	Domain    Domain    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
}

// TimerID returns the identity of the timer within its key.
func (t TimerData) TimerID() TimerID {
	return TimerID{Domain: t.Domain, ID: t.ID}
}

func (t TimerData) String() string {
	return fmt.Sprintf("%s[%s]@%d", t.Key, t.TimerID(), t.Timestamp.UnixMilli())
}

// Validate checks a timer that is about to be set.
func (t TimerData) Validate() error {
	if err := t.validateIdentity(); err != nil {
		return err
	}
	if t.Timestamp.IsZero() || t.Timestamp.UnixMilli() <= 0 {
		return fmt.Errorf("%w: timer %s has non-positive timestamp", ErrMalformedTimer, t.TimerID())
	}
	return nil
}

// validateIdentity checks only what is needed to address a timer, which is all a delete needs.
func (t TimerData) validateIdentity() error {
	if !t.Domain.Valid() {
		return fmt.Errorf("%w: unknown domain %d for timer %q", ErrMalformedTimer, int(t.Domain), t.ID)
	}
	if t.ID == "" {
		return fmt.Errorf("%w: empty timer id in domain %s", ErrMalformedTimer, t.Domain)
	}
	return nil
}
