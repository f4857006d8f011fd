package alerting

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
)

// Compiler turns a stored definition row into an evaluable Definition.
type Compiler interface {
	Compile(alertID, ownerID int64, text string) (*Definition, error)
}

// QueryCompiler parses the alert grammar
//
//	m("device", "group", "name") <cmp> <rhs> [for <duration>] do <action>
//
// where <cmp> is one of > >= < <= ==, <rhs> is a number or
// forecast(<period>) [* <factor>], <duration> is an integer followed by
// s, m, h, d or w, and <action> is a quoted or bare action name. At most one
// identity component may contain a wildcard.
type QueryCompiler struct{}

// NewQueryCompiler returns the default alert grammar compiler.
func NewQueryCompiler() *QueryCompiler {
	return &QueryCompiler{}
}

var durationUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// Compile implements Compiler. Every failure is a compile-category error.
func (QueryCompiler) Compile(alertID, ownerID int64, text string) (*Definition, error) {
	p := &queryParser{src: text, alertID: alertID}
	cond, action, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Definition{
		AlertID:    alertID,
		OwnerID:    ownerID,
		Text:       strings.TrimSpace(text),
		Condition:  cond,
		ActionName: action,
	}, nil
}

type queryParser struct {
	src     string
	pos     int
	alertID int64
}

func (p *queryParser) parse() (Condition, string, error) {
	if err := p.keyword("m"); err != nil {
		return nil, "", err
	}
	if err := p.expect('('); err != nil {
		return nil, "", err
	}
	var parts [3]string
	for i := range parts {
		if i > 0 {
			if err := p.expect(','); err != nil {
				return nil, "", err
			}
		}
		s, err := p.quoted()
		if err != nil {
			return nil, "", err
		}
		parts[i] = strings.TrimSpace(s)
	}
	if err := p.expect(')'); err != nil {
		return nil, "", err
	}

	pattern := metric.Pattern{Device: parts[0], Group: parts[1], Name: parts[2]}
	if err := pattern.Validate(); err != nil {
		return nil, "", p.fail("invalid metric: " + err.Error())
	}
	if pattern.WildcardCount() > 1 {
		return nil, "", p.fail("cannot have a metric with more than one wildcard")
	}

	cmp, err := p.comparator()
	if err != nil {
		return nil, "", err
	}
	var (
		threshold float64
		period    int
		factor    = 1.0
		forecasts = p.peekKeyword("forecast")
	)
	if forecasts {
		if period, factor, err = p.forecast(); err != nil {
			return nil, "", err
		}
	} else if threshold, err = p.number(); err != nil {
		return nil, "", err
	}

	var sustain time.Duration
	if p.peekKeyword("for") {
		_ = p.keyword("for")
		if sustain, err = p.duration(); err != nil {
			return nil, "", err
		}
	}

	if err := p.keyword("do"); err != nil {
		return nil, "", err
	}
	action, err := p.action()
	if err != nil {
		return nil, "", err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, "", p.fail("unexpected trailing input " + strconv.Quote(p.src[p.pos:]))
	}

	if forecasts {
		return NewForecastCondition(pattern, cmp, period, factor, sustain), action, nil
	}
	return &ThresholdCondition{
		Series:     pattern,
		Comparator: cmp,
		Threshold:  threshold,
		Duration:   sustain,
	}, action, nil
}

func (p *queryParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *queryParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.fail("expected " + strconv.QuoteRune(rune(c)))
	}
	p.pos++
	return nil
}

// word returns the identifier at the cursor without consuming it.
func (p *queryParser) word() string {
	p.skipSpace()
	end := p.pos
	for end < len(p.src) && (unicode.IsLetter(rune(p.src[end])) || p.src[end] == '_') {
		end++
	}
	return p.src[p.pos:end]
}

func (p *queryParser) peekKeyword(kw string) bool {
	return strings.EqualFold(p.word(), kw)
}

func (p *queryParser) keyword(kw string) error {
	w := p.word()
	if !strings.EqualFold(w, kw) {
		return p.fail("expected " + strconv.Quote(kw))
	}
	p.pos += len(w)
	return nil
}

func (p *queryParser) quoted() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '"' && p.src[p.pos] != '\'') {
		return "", p.fail("expected quoted string")
	}
	quote := p.src[p.pos]
	end := strings.IndexByte(p.src[p.pos+1:], quote)
	if end < 0 {
		return "", p.fail("unterminated string")
	}
	s := p.src[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return s, nil
}

func (p *queryParser) comparator() (Comparator, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("<>=!", p.src[p.pos]) >= 0 {
		p.pos++
	}
	op := p.src[start:p.pos]
	switch {
	case op == "=":
		p.pos = start
		return "", p.fail("unknown comparator = did you mean ==?")
	case op == "":
		return "", p.fail("expected comparator")
	case !Comparator(op).Valid():
		p.pos = start
		return "", p.fail("unknown comparator: " + op)
	}
	return Comparator(op), nil
}

func (p *queryParser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("+-.0123456789eE", p.src[p.pos]) >= 0 {
		p.pos++
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		p.pos = start
		return 0, p.fail("expected number")
	}
	return v, nil
}

// forecast parses "forecast(<period>) [* <factor>]".
func (p *queryParser) forecast() (int, float64, error) {
	_ = p.keyword("forecast")
	if err := p.expect('('); err != nil {
		return 0, 0, err
	}
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	period, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil || period < 2 || period > maxForecastPeriod {
		p.pos = start
		return 0, 0, p.fail("forecast period must be an integer between 2 and " + strconv.Itoa(maxForecastPeriod))
	}
	if err := p.expect(')'); err != nil {
		return 0, 0, err
	}

	factor := 1.0
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '*' {
		p.pos++
		if factor, err = p.number(); err != nil {
			return 0, 0, err
		}
		if factor <= 0 || math.IsInf(factor, 0) {
			return 0, 0, p.fail("forecast factor must be positive")
		}
	}
	return period, factor, nil
}

func (p *queryParser) duration() (time.Duration, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
	if err != nil {
		p.pos = start
		return 0, p.fail("expected duration such as 5m")
	}
	unit := strings.ToLower(p.word())
	for _, u := range durationUnits {
		if unit == u.suffix {
			if n > math.MaxInt64/int64(u.size) {
				p.pos = start
				return 0, p.fail("duration " + strconv.FormatInt(n, 10) + unit + " is out of range")
			}
			p.pos += len(unit)
			return time.Duration(n) * u.size, nil
		}
	}
	return 0, p.fail("unknown duration unit " + strconv.Quote(unit) + ", expected s, m, h, d or w")
}

func (p *queryParser) action() (string, error) {
	p.skipSpace()
	if p.pos < len(p.src) && (p.src[p.pos] == '"' || p.src[p.pos] == '\'') {
		s, err := p.quoted()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(s) == "" {
			return "", p.fail("empty action name")
		}
		return s, nil
	}
	start := p.pos
	for p.pos < len(p.src) && !unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return "", p.fail("expected action name")
	}
	return p.src[start:p.pos], nil
}

func (p *queryParser) fail(msg string) error {
	return errors.Newf("%s at offset %d", msg, p.pos).
		Component("alerting").
		Category(errors.CategoryCompile).
		Context("alert_id", p.alertID).
		Build()
}
