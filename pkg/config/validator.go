package config

import "fmt"

var knownAgentKinds = []string{"imperium", "guardian", "sandbox", "conquest"}

// Validator validates configuration with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at first error)
func (v *Validator) ValidateAll() error {
	if err := v.validateToken(); err != nil {
		return err
	}
	if err := v.validateRateLimit(); err != nil {
		return err
	}
	if err := v.validateCadence(); err != nil {
		return err
	}
	if err := v.validateResource(); err != nil {
		return err
	}
	if err := v.validateCustody(); err != nil {
		return err
	}
	if err := v.validateLearning(); err != nil {
		return err
	}
	if err := v.validateTransfer(); err != nil {
		return err
	}
	return v.validateNotifier()
}

func (v *Validator) validateToken() error {
	t := v.cfg.Token
	for name, b := range map[string]ProviderBudget{"primary": t.Primary, "secondary": t.Secondary} {
		if b.MonthlyCap <= 0 {
			return NewValidationError("token", name+".monthly_cap", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if b.PerRequestCap <= 0 {
			return NewValidationError("token", name+".per_request_cap", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if b.PerRequestCap > b.MonthlyCap {
			return NewValidationError("token", name+".per_request_cap", fmt.Errorf("%w: exceeds monthly cap", ErrInvalidValue))
		}
	}
	if t.FallbackThreshold <= 0 || t.FallbackThreshold > 1 {
		return NewValidationError("token", "fallback_threshold", fmt.Errorf("%w: must be in (0,1]", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateRateLimit() error {
	for name, rl := range map[string]ProviderRateLimit{"primary": v.cfg.RateLimit.Primary, "secondary": v.cfg.RateLimit.Secondary} {
		if rl.PerMinute <= 0 {
			return NewValidationError("ratelimit", name+".per_minute", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if rl.PerDay < rl.PerMinute {
			return NewValidationError("ratelimit", name+".per_day", fmt.Errorf("%w: below per_minute", ErrInvalidValue))
		}
	}
	return nil
}

func (v *Validator) validateCadence() error {
	for _, kind := range knownAgentKinds {
		if v.cfg.Cadence.Interval(kind) <= 0 {
			return NewValidationError("cadence", kind+"_minutes", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if v.cfg.Cadence.InitialDelay(kind) < 0 {
			return NewValidationError("cadence", kind+"_initial_delay_minutes", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
		}
	}
	return nil
}

func (v *Validator) validateResource() error {
	r := v.cfg.Resource
	if r.CPUMaxPct <= 0 || r.CPUMaxPct > 100 {
		return NewValidationError("resource", "cpu_max_pct", fmt.Errorf("%w: must be in (0,100]", ErrInvalidValue))
	}
	if r.MemMaxPct <= 0 || r.MemMaxPct > 100 {
		return NewValidationError("resource", "mem_max_pct", fmt.Errorf("%w: must be in (0,100]", ErrInvalidValue))
	}
	if r.SampleInterval <= 0 {
		return NewValidationError("resource", "sample_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if r.RetryInterval <= 0 {
		return NewValidationError("resource", "retry_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateCustody() error {
	if v.cfg.Custody.RecentFingerprintsN <= 0 {
		return NewValidationError("custody", "recent_fingerprints_n", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	for category, threshold := range v.cfg.Custody.PassThresholds {
		if _, known := defaultPassThresholds[category]; !known {
			return NewValidationError("custody", "pass_threshold."+category, fmt.Errorf("%w: unknown category", ErrInvalidValue))
		}
		if threshold < 0 || threshold > 100 {
			return NewValidationError("custody", "pass_threshold."+category, fmt.Errorf("%w: must be in [0,100]", ErrInvalidValue))
		}
	}
	return nil
}

func (v *Validator) validateLearning() error {
	e := v.cfg.Learning.EWMA
	if e.AlphaSuccess <= 0 || e.AlphaSuccess > 1 {
		return NewValidationError("learning", "ewma.alpha_success", fmt.Errorf("%w: must be in (0,1]", ErrInvalidValue))
	}
	if e.AlphaLearning <= 0 || e.AlphaLearning > 1 {
		return NewValidationError("learning", "ewma.alpha_learning", fmt.Errorf("%w: must be in (0,1]", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateTransfer() error {
	t := v.cfg.Transfer
	if t.TopK <= 0 {
		return NewValidationError("transfer", "top_k", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t.Interval <= 0 {
		return NewValidationError("transfer", "interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	for source, targets := range t.AffinityMatrix {
		if !isKnownKind(source) {
			return NewValidationError("transfer", "affinity_matrix", fmt.Errorf("%w: unknown source kind %q", ErrInvalidValue, source))
		}
		for target, weight := range targets {
			if !isKnownKind(target) {
				return NewValidationError("transfer", "affinity_matrix", fmt.Errorf("%w: unknown target kind %q", ErrInvalidValue, target))
			}
			if source == target {
				return NewValidationError("transfer", "affinity_matrix", fmt.Errorf("%w: self-transfer %q", ErrInvalidValue, source))
			}
			if weight < 0 {
				return NewValidationError("transfer", "affinity_matrix", fmt.Errorf("%w: negative weight %s->%s", ErrInvalidValue, source, target))
			}
		}
	}
	return nil
}

func (v *Validator) validateNotifier() error {
	n := v.cfg.Notifier
	if n.Enabled && n.Channel == "" {
		return NewValidationError("notifier", "channel", fmt.Errorf("%w: required when notifier is enabled", ErrMissingRequiredField))
	}
	return nil
}

func isKnownKind(kind string) bool {
	for _, k := range knownAgentKinds {
		if k == kind {
			return true
		}
	}
	return false
}
