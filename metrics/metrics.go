// Package metrics defines the observations the bot reports.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	prometheus.Collector
}

// Metrics is the set of observers used across the bot.
// A nil field in a Metrics value is never observed; use [Metrics.Observe].
type Metrics struct {
	// MessagesCount counts Discord messages seen, labeled by guild.
	MessagesCount Observer
	// CommandCount counts slash command invocations, labeled by command.
	CommandCount Observer
	// CommandLatency observes command handling time, labeled by command.
	CommandLatency Observer
	// DropCount counts waicolle drops, labeled by cause.
	DropCount Observer
	// AMQEventCount counts AMQ socket events, labeled by event name.
	AMQEventCount Observer
	// APILatency observes external API request time, labeled by service.
	APILatency Observer
}

// Collectors returns the non-nil collectors for registration.
func (m Metrics) Collectors() []prometheus.Collector {
	var r []prometheus.Collector
	for _, o := range []Observer{
		m.MessagesCount,
		m.CommandCount,
		m.CommandLatency,
		m.DropCount,
		m.AMQEventCount,
		m.APILatency,
	} {
		if o != nil {
			r = append(r, o)
		}
	}
	return r
}

// Observe observes val on o if o is not nil.
func Observe(o Observer, val float64, labels ...string) {
	if o == nil {
		return
	}
	o.Observe(val, labels...)
}
