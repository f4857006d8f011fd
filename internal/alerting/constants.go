// Package alerting evaluates alert definitions against the live sample
// stream and dispatches notifications when a condition is sustained.
package alerting

// Comparator symbols accepted in alert definitions.
const (
	ComparatorGreater        = ">"
	ComparatorGreaterOrEqual = ">="
	ComparatorLess           = "<"
	ComparatorLessOrEqual    = "<="
	ComparatorEqual          = "=="
)

// Action type tags stored in alert_actions.type.
const (
	ActionTypeEmail      = "Email"
	ActionTypeATTSMS     = "AT&T SMS"
	ActionTypeSprintSMS  = "Sprint SMS"
	ActionTypeTMobileSMS = "T-Mobile SMS"
	ActionTypeVerizonSMS = "Verizon SMS"
	ActionTypeLog        = "Log"
)

// SMS gateway domains per carrier.
const (
	SuffixATT     = "@txt.att.net"
	SuffixSprint  = "@messaging.sprintpcs.com"
	SuffixTMobile = "@tmomail.net"
	SuffixVerizon = "@vtext.com"
)

const (
	smsSubject         = "METRINK Alert"
	emailSubjectPrefix = "[METRINK] Alert for "
	// DefaultGraphBaseURL is prefixed to the graph query in email alerts.
	DefaultGraphBaseURL = "https://www.metrink.com/graphing/"
	// graphWindowMinutes is how far before the triggering sample the email graph starts.
	graphWindowMinutes = 30
)
