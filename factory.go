package gobounce

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("gobounce: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})
}

// effectiveConfig holds the validated and parsed configuration
// that was obtained from the user-provided configuration.
type effectiveConfig struct {
	Wait       time.Duration
	MaxWait    time.Duration
	HasMaxWait bool
	Leading    bool
	Trailing   bool

	HistorySize int
	IdleTTL     time.Duration
	Name        string
	Throttle    bool
}

// Debounce returns a controller that delays invoking fn until wait
// has elapsed since the last call, following the edge policy
// given with the options (trailing only by default).
//
// A non-nil error is returned in case of invalid configuration.
func Debounce[T, R any](fn Func[T, R], wait time.Duration, opts ...Option) (*Controller[T, R], error) {
	cfg := newConfig(wait, false)
	for _, opt := range opts {
		opt(cfg)
	}
	return build(fn, cfg)
}

// Throttle returns a controller that invokes fn at most once per wait,
// and at least once per wait while calls keep arriving.
// It is a Debounce with maxWait = wait, leading and trailing by default.
//
// A non-nil error is returned in case of invalid configuration.
func Throttle[T, R any](fn Func[T, R], wait time.Duration, opts ...Option) (*Controller[T, R], error) {
	cfg := newConfig(wait, true)
	for _, opt := range opts {
		opt(cfg)
	}
	return build(fn, cfg)
}

func build[T, R any](fn Func[T, R], cfg *config) (*Controller[T, R], error) {
	if fn == nil {
		return nil, &InvalidConfiguration{Reason: "fn must not be nil"}
	}

	logger := resolveLogger(cfg)

	parsed, err := validateConfiguration(cfg, logger)
	if err != nil {
		return nil, err
	}

	c := newController(fn, parsed, cfg, logger)
	if cfg.Signal != nil {
		c.stopSignal = context.AfterFunc(cfg.Signal, c.abort)
	}
	return c, nil
}

func resolveLogger(cfg *config) Logger {
	if cfg.Logger == nil {
		return NewStdLogger(false)
	}
	cfg.Logger.Info("binding provided logger to controller")
	return cfg.Logger
}

// newController wires an already validated configuration.
// The signal is registered by the caller.
func newController[T, R any](fn Func[T, R], parsed *effectiveConfig, cfg *config, logger Logger) *Controller[T, R] {
	c := &Controller[T, R]{
		id:      uuid.NewString(),
		name:    parsed.Name,
		fn:      fn,
		config:  parsed,
		clock:   cfg.Clock,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		onError: cfg.ErrorHandler,
	}

	if c.clock == nil {
		c.clock = defaultClock
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("")
	}
	if c.onError == nil {
		c.onError = func(err error) {
			c.logger.Error(fmt.Sprintf("%sdeferred invocation failed: %v", c.logPrefix(), err))
		}
	}
	if parsed.HistorySize > 0 {
		c.history = newInvocationHistory(parsed.HistorySize)
	}

	return c
}

// validateConfiguration will parse the user-provided configuration
// to the required format for runtime while also validating it.
func validateConfiguration(cfg *config, logger Logger) (*effectiveConfig, error) {
	if logger == nil {
		logger = NewStdLogger(false)
	}

	if err := validateStruct(cfg); err != nil {
		return nil, err
	}

	out := effectiveConfig{
		Wait:        cfg.Wait,
		Leading:     cfg.Leading,
		Trailing:    cfg.Trailing,
		HistorySize: cfg.HistorySize,
		IdleTTL:     cfg.IdleTTL,
		Name:        strings.TrimSpace(cfg.Name),
		Throttle:    cfg.throttle,
	}

	if out.Name == "" {
		out.Name = defaultName
	}

	if cfg.throttle {
		// forcing the deferral bound to the window is what makes it a throttle
		if cfg.HasMaxWait && cfg.MaxWait != cfg.Wait {
			logger.Warning(fmt.Sprintf("maxWait of %v is ignored by throttle, using the wait of %v", cfg.MaxWait, cfg.Wait))
		}
		out.MaxWait = cfg.Wait
		out.HasMaxWait = true
	} else if cfg.HasMaxWait {
		out.MaxWait = cfg.MaxWait
		out.HasMaxWait = true
		if out.MaxWait < out.Wait {
			logger.Warning(fmt.Sprintf("maxWait of %v is smaller than wait, raising it to %v", cfg.MaxWait, cfg.Wait))
			out.MaxWait = out.Wait
		}
	}

	if !out.Leading && !out.Trailing {
		logger.Warning("both leading and trailing edges are disabled: calls within the wait are dropped")
	}

	return &out, nil
}

// validateStruct runs the validation tags of the given struct
// and converts the failures to an InvalidConfiguration.
func validateStruct(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return &InvalidConfiguration{Reason: err.Error()}
	}

	out := &InvalidConfiguration{}
	for _, verror := range verrors {
		out.Fields = append(out.Fields, FieldError{
			Field: verror.Field(),
			Err:   verror.Translate(translator),
		})
	}
	return out
}
