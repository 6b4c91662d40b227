package rules

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gematik/zero-op/oauth2"
)

type recordingRule struct {
	key   string
	err   error
	trace *[]string
}

func (r recordingRule) Key() string { return r.key }

func (r recordingRule) Check(req *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	*r.trace = append(*r.trace, r.key)
	if r.err != nil {
		return nil, r.err
	}
	return NewResult(r.key, r.key+"-value"), nil
}

func TestCheckRunsRulesInListedOrder(t *testing.T) {
	trace := []string{}
	manager := NewManager(nil,
		recordingRule{key: "one", trace: &trace},
		recordingRule{key: "two", trace: &trace},
		recordingRule{key: "three", trace: &trace},
	)

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	bag, err := manager.Check(req, []string{"three", "one", "two"}, false, nil)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	want := []string{"three", "one", "two"}
	if len(trace) != len(want) {
		t.Fatalf("expected %d rule executions, got %d", len(want), len(trace))
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("execution %d: expected %s, got %s", i, want[i], trace[i])
		}
	}
	if bag.StringValue("one") != "one-value" {
		t.Errorf("bag is missing the result of rule 'one'")
	}
}

func TestCheckShortCircuitsOnFirstError(t *testing.T) {
	trace := []string{}
	manager := NewManager(nil,
		recordingRule{key: "first", trace: &trace},
		recordingRule{key: "failing", err: oauth2.InvalidRequest("nope"), trace: &trace},
		recordingRule{key: "never", trace: &trace},
	)

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	bag, err := manager.Check(req, []string{"first", "failing", "never"}, false, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if bag == nil {
		t.Fatal("bag with the accumulated results must be returned on failure")
	}
	if bag.StringValue("first") != "first-value" {
		t.Error("result of the rule before the failing one is missing from the bag")
	}
	protocolError, ok := err.(*oauth2.Error)
	if !ok {
		t.Fatalf("expected *oauth2.Error, got %T", err)
	}
	if protocolError.Code != oauth2.ErrorInvalidRequest {
		t.Errorf("expected %s, got %s", oauth2.ErrorInvalidRequest, protocolError.Code)
	}
	for _, executed := range trace {
		if executed == "never" {
			t.Error("rule after the failing one was executed")
		}
	}
}

func TestCheckRejectsDisallowedMethod(t *testing.T) {
	trace := []string{}
	manager := NewManager(nil, recordingRule{key: "one", trace: &trace})

	req := httptest.NewRequest(http.MethodDelete, "/auth", nil)
	_, err := manager.Check(req, []string{"one"}, false, []string{http.MethodGet, http.MethodPost})
	if err == nil {
		t.Fatal("expected an error for DELETE")
	}
	if len(trace) != 0 {
		t.Error("rules must not run for a disallowed method")
	}
}

func TestCheckFaultsOnUnregisteredKey(t *testing.T) {
	manager := NewManager(nil)
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic")
		}
		if _, ok := r.(oauth2.Fault); !ok {
			t.Fatalf("expected oauth2.Fault, got %T", r)
		}
	}()
	manager.Check(req, []string{"missing"}, false, nil)
}

func TestRegisterFaultsOnDuplicateKey(t *testing.T) {
	trace := []string{}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic")
		}
	}()
	NewManager(nil,
		recordingRule{key: "dup", trace: &trace},
		recordingRule{key: "dup", trace: &trace},
	)
}

func TestCheckWithBagSkipsPredefinedResults(t *testing.T) {
	trace := []string{}
	manager := NewManager(nil,
		recordingRule{key: "predefined", trace: &trace},
		recordingRule{key: "fresh", trace: &trace},
	)

	bag := NewResultBag()
	bag.Predefine("predefined", "pinned")

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	bag, err := manager.CheckWithBag(req, bag, []string{"predefined", "fresh"}, false, nil, nil)
	if err != nil {
		t.Fatalf("CheckWithBag failed: %v", err)
	}

	for _, executed := range trace {
		if executed == "predefined" {
			t.Error("predefined rule must be skipped")
		}
	}
	if bag.StringValue("predefined") != "pinned" {
		t.Errorf("predefined value was overwritten: %s", bag.StringValue("predefined"))
	}
}

func TestGetOrFailFaultsOnMissingKey(t *testing.T) {
	bag := NewResultBag()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic")
		}
		if _, ok := r.(oauth2.Fault); !ok {
			t.Fatalf("expected oauth2.Fault, got %T", r)
		}
	}()
	bag.GetOrFail("absent")
}
