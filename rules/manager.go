package rules

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gematik/zero-op/oauth2"
)

// RuleContext carries the per-check environment a rule may consult: the
// logger, endpoint-local data (e.g. the authenticated user) and the
// method/fragment policy flags of the calling endpoint.
type RuleContext struct {
	Logger         *slog.Logger
	Data           map[string]any
	UseFragment    bool
	AllowedMethods []string
}

// Rule is a single, independently testable validation step. Check returns
// a Result to add to the bag, nil when the rule ran but produced no new
// fact, or a protocol error.
type Rule interface {
	Key() string
	Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error)
}

// Manager executes rules against incoming requests. The rule set is
// resolved at startup; referencing an unregistered rule key at check time
// is a configuration fault.
type Manager struct {
	rules  map[string]Rule
	logger *slog.Logger
}

func NewManager(logger *slog.Logger, ruleList ...Rule) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		rules:  make(map[string]Rule, len(ruleList)),
		logger: logger,
	}
	for _, rule := range ruleList {
		m.Register(rule)
	}
	return m
}

func (m *Manager) Register(rule Rule) {
	if _, ok := m.rules[rule.Key()]; ok {
		oauth2.Faultf("rule '%s' registered twice", rule.Key())
	}
	m.rules[rule.Key()] = rule
}

// Check runs the rules named by ruleKeys in exactly that order against the
// request, accumulating results in a fresh bag. It short-circuits on the
// first protocol error.
func (m *Manager) Check(r *http.Request, ruleKeys []string, useFragment bool, allowedMethods []string) (*ResultBag, error) {
	return m.CheckWithBag(r, NewResultBag(), ruleKeys, useFragment, allowedMethods, nil)
}

// CheckWithBag runs rules against a bag that may already hold predefined
// results. Rules whose key is already present are skipped. On failure the
// bag is returned with the results accumulated up to the failing rule, so
// callers can still read already-validated facts such as redirect_uri.
func (m *Manager) CheckWithBag(r *http.Request, bag *ResultBag, ruleKeys []string, useFragment bool, allowedMethods []string, data map[string]any) (*ResultBag, error) {
	if len(allowedMethods) > 0 && !contains(allowedMethods, r.Method) {
		return bag, oauth2.InvalidRequest(fmt.Sprintf("method %s not allowed, expected %s", r.Method, strings.Join(allowedMethods, " or ")))
	}

	if err := r.ParseForm(); err != nil {
		return bag, oauth2.InvalidRequest("malformed request body").WithHint("%v", err)
	}

	if data == nil {
		data = make(map[string]any)
	}
	rc := &RuleContext{
		Logger:         m.logger,
		Data:           data,
		UseFragment:    useFragment,
		AllowedMethods: allowedMethods,
	}

	for _, key := range ruleKeys {
		rule, ok := m.rules[key]
		if !ok {
			oauth2.Faultf("rule '%s' is not registered", key)
		}
		if bag.Has(key) {
			continue
		}
		result, err := rule.Check(r, bag, rc)
		if err != nil {
			m.logger.Debug("rule failed", "rule", key, "error", err)
			return bag, err
		}
		if result != nil {
			bag.Add(result)
		}
	}

	return bag, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// param reads a request parameter from the query string or form body.
func param(r *http.Request, name string) string {
	return r.FormValue(name)
}
