// Package errors provides categorized errors with a fluent builder and
// re-exports the standard library helpers so callers need a single import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// Category classifies an error for handling and reporting.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryCompile       Category = "compile"
	CategoryStorage       Category = "storage"
	CategoryDelivery      Category = "delivery"
	CategoryConfiguration Category = "configuration"
	CategorySystem        Category = "system"
)

// EnhancedError wraps an error with a component, a category and context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	if e.component == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.component, e.Err.Error())
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// Component returns the component that produced the error.
func (e *EnhancedError) Component() string { return e.component }

// Category returns the error category.
func (e *EnhancedError) Category() Category { return e.category }

// Context returns a copy of the attached context.
func (e *EnhancedError) Context() map[string]any {
	return maps.Clone(e.context)
}

// ContextString renders the context as sorted key=value pairs.
func (e *EnhancedError) ContextString() string {
	keys := make([]string, 0, len(e.context))
	for k := range e.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.context[k]))
	}
	return strings.Join(parts, " ")
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err *EnhancedError
}

// New starts a builder wrapping err.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: &EnhancedError{Err: err, category: CategorySystem}}
}

// Newf starts a builder with a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the producing component.
func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.err.component = component
	return b
}

// Category sets the error category.
func (b *ErrorBuilder) Category(category Category) *ErrorBuilder {
	b.err.category = category
	return b
}

// Context attaches a key/value pair.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.err.context == nil {
		b.err.context = make(map[string]any)
	}
	b.err.context[key] = value
	return b
}

// Build finalizes the error and hands it to the registered reporter.
func (b *ErrorBuilder) Build() error {
	report(b.err)
	return b.err
}

// Reporter receives every built error.
type Reporter func(err *EnhancedError)

var (
	reporter   Reporter
	reporterMu sync.RWMutex
)

// SetReporter installs a reporter. Pass nil to disable reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func report(err *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r(err)
	}
}

// CategoryOf returns the category of the first EnhancedError in err's chain.
func CategoryOf(err error) (Category, bool) {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.category, true
	}
	return "", false
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	c, ok := CategoryOf(err)
	return ok && c == category
}

// NewStd creates a plain error, for sentinel values.
func NewStd(text string) error { return stderrors.New(text) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Unwrap returns the result of calling Unwrap on err.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
