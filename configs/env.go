package configs

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/subosito/gotenv"
)

// EnvConfig lists the environment files to read configuration from.
type EnvConfig struct {
	flagBase

	EnvFiles []string
}

// NewEnvConfig returns a new instance of the configuration.
func NewEnvConfig() *EnvConfig {
	return &EnvConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *EnvConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringArrayVar(&c.EnvFiles, "env-file", []string{}, "Full path to the environment file, multiple OK; the process environment takes precedence")
	}
	return c.flagSet
}

// Apply reads the environment files and the process environment
// and updates every given configuration from the merged result.
func (c *EnvConfig) Apply(environ []string, targets ...EnvironmentInheriting) error {
	env, err := ReadEnvironment(c.EnvFiles, environ)
	if err != nil {
		return err
	}
	for _, target := range targets {
		if err := target.UpdateFromEnvironment(env); err != nil {
			return err
		}
	}
	return nil
}

// ReadEnvironment returns the merged environment.
// The order of merging:
//   - parse each env file in order provided
//   - apply the process environment given as KEY=VALUE pairs
//
// Duplicated values are always overriden.
func ReadEnvironment(envFiles []string, environ []string) (map[string]string, error) {
	env := map[string]string{}
	for _, envFile := range envFiles {
		partialEnv, err := readEnvFile(envFile)
		if err != nil {
			return env, err
		}
		for k, v := range partialEnv {
			env[k] = v
		}
	}
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}

func readEnvFile(envFile string) (gotenv.Env, error) {
	f, openErr := os.Open(envFile)
	if openErr != nil {
		return nil, errors.Wrapf(openErr, "failed opening environment file '%s' for reading", envFile)
	}
	defer f.Close()
	partialEnv, parseErr := gotenv.StrictParse(f)
	if parseErr != nil {
		return nil, errors.Wrapf(parseErr, "failed parsing environment file '%s'", envFile)
	}
	return partialEnv, nil
}

// decodeEnvironment decodes bound environment variables into the target.
// Bindings map an environment variable name to the flag name it backs;
// variables backing a flag set explicitly on the command line are skipped.
// The target fields are matched by their mapstructure tag, which is the environment variable name.
func decodeEnvironment(target interface{}, fb *flagBase, bindings map[string]string, env map[string]string) error {
	input := map[string]interface{}{}
	for envName, flagName := range bindings {
		value, ok := env[envName]
		if !ok {
			continue
		}
		if fb.flagChanged(flagName) {
			continue
		}
		input[envName] = value
	}
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return errors.Wrap(err, "failed creating environment decoder")
	}
	if err := decoder.Decode(input); err != nil {
		return errors.Wrap(err, "failed decoding environment")
	}
	return nil
}
