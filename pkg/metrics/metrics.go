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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelStage  = "stage"
	LabelDomain = "domain"
	LabelReason = "reason"
)

// Timer metrics
var (
	// TimersSet is the number of timers set or replaced by applied timer updates
	TimersSet = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "timers",
		Name:      "set_total",
		Help:      "Total number of timers set by applied timer updates",
	}, []string{LabelStage, LabelDomain})

	// TimersDeleted is the number of deletes in applied timer updates, including deletes of absent timers
	TimersDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "timers",
		Name:      "deleted_total",
		Help:      "Total number of timer deletes in applied timer updates",
	}, []string{LabelStage, LabelDomain})

	// TimersFired is the number of timers fired
	TimersFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "timers",
		Name:      "fired_total",
		Help:      "Total number of timers fired",
	}, []string{LabelStage, LabelDomain})

	// TimerFiringDelay is the processing time between a timer's timestamp and it firing
	TimerFiringDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "timers",
		Name:      "firing_delay_seconds",
		Help:      "Processing time elapsed between the timer timestamp and the timer firing (1 millisecond to 10 minutes)",
		Buckets:   prometheus.ExponentialBucketsRange(0.001, 600, 10),
	}, []string{LabelStage, LabelDomain})

	// TimersPending is the number of live timers seen by the last firing pass over all keys
	TimersPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "timers",
		Name:      "pending",
		Help:      "Number of live timers after the last firing pass over all keys",
	}, []string{LabelStage})

	// TimerUpdateApplyErrors is the number of timer updates the store failed to apply
	TimerUpdateApplyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "timers",
		Name:      "update_apply_error_total",
		Help:      "Total number of timer updates that failed to apply",
	}, []string{LabelStage})

	// UnitOfWorkErrors is the number of discarded units of work
	UnitOfWorkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "timers",
		Name:      "unit_of_work_error_total",
		Help:      "Total number of units of work discarded because of an error",
	}, []string{LabelStage, LabelReason})
)
