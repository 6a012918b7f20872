package gobounce

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects the kind of controller a Policy builds.
type Mode string

const (
	ModeDebounce Mode = "debounce"
	ModeThrottle Mode = "throttle"
)

// Policy is a declarative controller configuration,
// usually loaded from a YAML file with LoadPolicies:
//
//	policies:
//	  search:
//	    mode: debounce
//	    wait: 300ms
//	    maxWait: 1s
//	  scroll:
//	    mode: throttle
//	    wait: 100ms
//	    trailing: false
//
// Unset fields keep the defaults of the selected mode.
type Policy struct {
	Mode        Mode           `yaml:"mode" json:"mode" validate:"omitempty,oneof=debounce throttle"`
	Wait        time.Duration  `yaml:"wait" json:"wait" validate:"gte=0"`
	MaxWait     *time.Duration `yaml:"maxWait" json:"maxWait" validate:"omitempty,gte=0"`
	Leading     *bool          `yaml:"leading" json:"leading"`
	Trailing    *bool          `yaml:"trailing" json:"trailing"`
	HistorySize *int           `yaml:"historySize" json:"historySize" validate:"omitempty,gte=0,lte=4096"`
	IdleTTL     time.Duration  `yaml:"idleTTL" json:"idleTTL" validate:"gte=0"`
}

type policyFile struct {
	Policies map[string]Policy `yaml:"policies"`
}

// LoadPolicies decodes a set of named policies.
// Unknown fields are rejected and every policy is validated.
// An empty document yields an empty set.
func LoadPolicies(r io.Reader) (map[string]Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var parsed policyFile
	if err := dec.Decode(&parsed); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]Policy{}, nil
		}
		return nil, fmt.Errorf("decoding policies: %w", err)
	}

	if parsed.Policies == nil {
		parsed.Policies = map[string]Policy{}
	}
	for name, p := range parsed.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
	}
	return parsed.Policies, nil
}

// LoadPoliciesFromPath reads the policies from a YAML file.
func LoadPoliciesFromPath(path string) (map[string]Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadPolicies(f)
}

// Validate checks the policy, returning an *InvalidConfiguration.
func (p Policy) Validate() error {
	return validateStruct(p)
}

// IsThrottle reports whether the policy builds throttled controllers.
func (p Policy) IsThrottle() bool {
	return p.Mode == ModeThrottle
}

// Options converts the policy to the equivalent options.
// The wait and the mode are not options: see NewFromPolicy.
func (p Policy) Options() []Option {
	var out []Option
	if p.MaxWait != nil {
		out = append(out, WithMaxWait(*p.MaxWait))
	}
	if p.Leading != nil {
		out = append(out, WithLeading(*p.Leading))
	}
	if p.Trailing != nil {
		out = append(out, WithTrailing(*p.Trailing))
	}
	if p.HistorySize != nil {
		out = append(out, WithHistorySize(*p.HistorySize))
	}
	if p.IdleTTL > 0 {
		out = append(out, WithIdleTTL(p.IdleTTL))
	}
	return out
}

// NewFromPolicy builds a controller as described by the policy.
// Further options are applied after the ones of the policy.
func NewFromPolicy[T, R any](fn Func[T, R], p Policy, opts ...Option) (*Controller[T, R], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	all := append(p.Options(), opts...)
	if p.IsThrottle() {
		return Throttle(fn, p.Wait, all...)
	}
	return Debounce(fn, p.Wait, all...)
}

// NewGroupFromPolicy builds a group as described by the policy.
func NewGroupFromPolicy[K comparable, T, R any](fn KeyedFunc[K, T, R], p Policy, opts ...Option) (*Group[K, T, R], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	all := append(p.Options(), opts...)
	if p.IsThrottle() {
		return NewThrottleGroup(fn, p.Wait, all...)
	}
	return NewGroup(fn, p.Wait, all...)
}
