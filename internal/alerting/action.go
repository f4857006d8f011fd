package alerting

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/notification"
)

// Action delivers one notification for a fired alert.
type Action interface {
	Send(ctx context.Context, sample metric.Sample, def *Definition, destination string) error
}

// ActionDeps are the collaborators handed to every action constructor.
type ActionDeps struct {
	Mailer       notification.Mailer
	Log          logger.Logger
	GraphBaseURL string
	UseHTML      bool
	Location     *time.Location // graph link times; UTC when nil
}

// ActionConstructor builds an Action for one type tag.
type ActionConstructor func(deps ActionDeps) Action

// ActionFactory resolves action type tags to Action implementations.
type ActionFactory struct {
	deps  ActionDeps
	ctors map[string]ActionConstructor
	mu    sync.RWMutex
}

// NewActionFactory creates an empty factory. Call RegisterDefaultActions to
// install the built-in types.
func NewActionFactory(deps ActionDeps) *ActionFactory {
	if deps.GraphBaseURL == "" {
		deps.GraphBaseURL = DefaultGraphBaseURL
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &ActionFactory{deps: deps, ctors: make(map[string]ActionConstructor)}
}

// Register installs or replaces the constructor for tag.
func (f *ActionFactory) Register(tag string, ctor ActionConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[tag] = ctor
}

// Create returns the Action for tag. An unknown tag is a configuration error.
func (f *ActionFactory) Create(tag string) (Action, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[tag]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("unknown action type %q", tag).
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Context("action_type", tag).
			Build()
	}
	return ctor(f.deps), nil
}

// Types returns the registered tags in sorted order.
func (f *ActionFactory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tags := make([]string, 0, len(f.ctors))
	for tag := range f.ctors {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// RegisterDefaultActions installs Email, the carrier SMS gateways and Log.
func RegisterDefaultActions(f *ActionFactory) {
	f.Register(ActionTypeEmail, func(d ActionDeps) Action { return NewEmailAction(d) })
	f.Register(ActionTypeATTSMS, smsConstructor(SuffixATT))
	f.Register(ActionTypeSprintSMS, smsConstructor(SuffixSprint))
	f.Register(ActionTypeTMobileSMS, smsConstructor(SuffixTMobile))
	f.Register(ActionTypeVerizonSMS, smsConstructor(SuffixVerizon))
	f.Register(ActionTypeLog, func(d ActionDeps) Action { return NewLogAction(d.Log) })
}

func smsConstructor(suffix string) ActionConstructor {
	return func(d ActionDeps) Action { return NewSMSAction(d.Mailer, suffix) }
}

func missingMailer(actionType string) error {
	return errors.Newf("%s action requires a configured mailer", actionType).
		Component("alerting").
		Category(errors.CategoryConfiguration).
		Build()
}
