package rules

import (
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
)

// scriptEvaluator compiles and runs script conditions through expr-lang with
// sandboxing: no host-language code execution, only expression evaluation
// over the event payload. Compiled programs are cached by source.
type scriptEvaluator struct {
	programs *gocache.Cache
}

type compiledScript struct {
	source  string
	program *vm.Program
	invalid bool
}

func newScriptEvaluator() *scriptEvaluator {
	return &scriptEvaluator{
		programs: gocache.New(30*time.Minute, time.Hour),
	}
}

// scriptOptions returns the sandboxed compile options. The environment binds
// both "data" and "event" to the event payload, mirroring the condition
// contract seen by rule authors.
func scriptOptions() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	}
}

func (s *scriptEvaluator) compile(source string, logger logging.Logger) *compiledScript {
	if cached, found := s.programs.Get(source); found {
		if program, ok := cached.(*vm.Program); ok {
			return &compiledScript{source: source, program: program}
		}
	}

	program, err := expr.Compile(source, scriptOptions()...)
	if err != nil {
		// A broken script never matches; the trigger stays registered.
		logger.Warn("Failed to compile script condition",
			logging.String("script", source),
			logging.Err(err),
		)
		return &compiledScript{source: source, invalid: true}
	}

	s.programs.Set(source, program, gocache.DefaultExpiration)
	return &compiledScript{source: source, program: program}
}

func (s *scriptEvaluator) run(script *compiledScript, data map[string]interface{}, logger logging.Logger) bool {
	if script.invalid || script.program == nil {
		return false
	}

	env := map[string]interface{}{
		"data":  data,
		"event": data,
	}

	result, err := expr.Run(script.program, env)
	if err != nil {
		logger.Warn("Script condition evaluation failed",
			logging.String("script", script.source),
			logging.Err(err),
		)
		return false
	}

	matched, ok := result.(bool)
	return ok && matched
}
