// Package config loads service configuration from struct tags, an optional
// YAML or JSON file, an optional dotenv file, and the process environment.
// Values are resolved in this order, later layers winning:
//
//	envDefault struct tags
//	YAML/JSON config file
//	.env file (never overrides variables already set in the environment)
//	environment variables
//
// # Struct Tags
//
//   - `env:"NAME"` maps a field to PREFIX_NAME; nested structs prepend
//     their own env tag (LEARNHUB_POSTGRES_HOST)
//   - `envDefault:"value"` sets a default for zero-valued fields
//   - `required:"true"` fails validation when the field is still zero
//
// File loading uses the `yaml` and `json` tags of the target struct.
//
//	cfg := config.MustLoad[app.Config](
//	    config.New().WithEnvPrefix("LEARNHUB").WithFile("learnhub.yaml").WithDotEnv(".env"),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// time.Duration has Kind() == Int64, so it is matched by type first.
var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration into a struct. It is not safe for
// concurrent use; build one per Load call.
type Loader struct {
	envPrefix  string
	filePath   string
	dotEnvPath string
}

// New returns a Loader that reads only the environment.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends PREFIX_ to every env tag. The prefix is
// uppercased; an empty prefix disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a .yaml, .yml or .json file. A missing file is not an
// error. Paths containing ".." are rejected at Load time.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithDotEnv sets a dotenv file whose variables are exported into the
// process environment before the environment layer runs. Variables that
// are already set keep their value. A missing file is not an error.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, and then
// validates it: required tags first, then [Validator] if implemented.
//
// Loading failures carry [sserr.CodeInternalConfiguration]; validation
// failures carry [sserr.CodeValidationRequired] or [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if l.dotEnvPath != "" {
		if err := l.loadDotEnv(); err != nil {
			return err
		}
	}
	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Intended for process startup only.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}

func (l *Loader) loadDotEnv() error {
	if strings.Contains(l.dotEnvPath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: dotenv path must not contain directory traversal (..) sequences")
	}
	if _, err := os.Stat(l.dotEnvPath); os.IsNotExist(err) {
		return nil
	}
	// godotenv.Load leaves already-set variables untouched.
	if err := godotenv.Load(l.dotEnvPath); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to load dotenv file %q", l.dotEnvPath)
	}
	return nil
}

func isLeafStruct(field reflect.Value) bool {
	return field.Kind() == reflect.Struct && field.Type() != durationType
}

// applyDefaults sets envDefault values on zero-valued fields, recursing
// into nested structs.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if isLeafStruct(field) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}
		tag := sf.Tag.Get("envDefault")
		if tag == "" || !field.IsZero() {
			continue
		}
		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}
	return nil
}

// applyEnv sets fields from the environment. A nested struct's env tag is
// appended to the prefix of its children.
func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		envTag := sf.Tag.Get("env")

		if isLeafStruct(field) {
			if err := applyEnv(field, joinEnv(prefix, envTag)); err != nil {
				return err
			}
			continue
		}
		if envTag == "" {
			continue
		}

		key := joinEnv(prefix, envTag)
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, key)
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported kinds: string (including
// named string types such as Secret), bool, signed and unsigned integers,
// float64, time.Duration, and []string (comma separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
