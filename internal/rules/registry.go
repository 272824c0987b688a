// Package rules holds the smart-contract firewall rules shown on the
// dashboard. Rules are display state only and are never evaluated against
// traffic.
package rules

import (
	"errors"
	"fmt"
)

// ErrRuleNotFound is returned when toggling an unknown rule.
var ErrRuleNotFound = errors.New("rule not found")

// Action is the verdict a rule declares.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionBlock Action = "BLOCK"
)

// Rule is a cosmetic allow/block policy entry.
type Rule struct {
	ID              string  `json:"id" yaml:"id"`
	ContractAddress string  `json:"contract_address" yaml:"contract_address"`
	Action          Action  `json:"action" yaml:"action"`
	Condition       string  `json:"condition" yaml:"condition"`
	GasCost         float64 `json:"gas_cost" yaml:"gas_cost"`
	Active          bool    `json:"active" yaml:"active"`
}

// DefaultRules returns the seed rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:              "rule-1",
			ContractAddress: "0x71C...9A21",
			Action:          ActionBlock,
			Condition:       "Port == 23 (Telnet)",
			GasCost:         0.002,
			Active:          true,
		},
		{
			ID:              "rule-2",
			ContractAddress: "0x3A2...B1C4",
			Action:          ActionBlock,
			Condition:       "SourceIP in BlacklistContract",
			GasCost:         0.005,
			Active:          true,
		},
		{
			ID:              "rule-3",
			ContractAddress: "0x99D...F2E1",
			Action:          ActionAllow,
			Condition:       "Signature valid && Whitelist",
			GasCost:         0.001,
			Active:          true,
		},
	}
}

// Registry is an ordered, fixed set of rules. Not safe for concurrent use.
type Registry struct {
	rules []Rule
	index map[string]int
}

// NewRegistry creates a registry from seed rules. Duplicate or empty
// identifiers are rejected.
func NewRegistry(seed []Rule) (*Registry, error) {
	r := &Registry{
		rules: make([]Rule, 0, len(seed)),
		index: make(map[string]int, len(seed)),
	}
	for _, rule := range seed {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule with empty id")
		}
		if _, dup := r.index[rule.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		if rule.Action != ActionAllow && rule.Action != ActionBlock {
			return nil, fmt.Errorf("rule %q: invalid action %q", rule.ID, rule.Action)
		}
		r.index[rule.ID] = len(r.rules)
		r.rules = append(r.rules, rule)
	}
	return r, nil
}

// Toggle flips the active flag of the rule with the given id and returns
// the updated rule.
func (r *Registry) Toggle(id string) (Rule, error) {
	i, ok := r.index[id]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.rules[i].Active = !r.rules[i].Active
	return r.rules[i], nil
}

// Get returns the rule with the given id.
func (r *Registry) Get(id string) (Rule, bool) {
	i, ok := r.index[id]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// List returns a copy of all rules in seed order.
func (r *Registry) List() []Rule {
	return append([]Rule(nil), r.rules...)
}

// ActiveCount returns the number of active rules.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, rule := range r.rules {
		if rule.Active {
			n++
		}
	}
	return n
}
