package main

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the Jira connection settings. It is built once at startup
// and handed to every client call.
type Config struct {
	Host     string `flag:"host" validate:"required,hostname_port|fqdn|hostname"`
	Email    string `flag:"email" validate:"required,email"`
	APIToken string `flag:"api_token" validate:"required"`
}

// Options is the resolved command line.
type Options struct {
	Config

	ProjectKey string `flag:"project_key" validate:"required"`
	Version    string `flag:"version" validate:"required"`
	Release    bool   `flag:"release"`
	Delete     bool   `flag:"delete"`

	Report  string `flag:"report" validate:"required_if=Notify true"`
	Notify  bool   `flag:"notify"`
	NoColor bool   `flag:"no_color"`
}

var errUsage = errors.New("invalid arguments")

// env fallbacks for the connection settings; flags take precedence
var configEnv = map[string]string{
	"host":      "JIRA_HOST",
	"email":     "JIRA_EMAIL",
	"api_token": "JIRA_API_TOKEN",
}

func parseOptions(args []string, lookupEnv func(string) (string, bool)) (*Options, error) {
	flags := pflag.NewFlagSet("jira-version", pflag.ContinueOnError)
	flags.SortFlags = false

	opts := &Options{}
	flags.StringVar(&opts.Email, "email", "", "E-mail address (or JIRA_EMAIL)")
	flags.StringVar(&opts.APIToken, "api_token", "", "Api token (or JIRA_API_TOKEN)")
	flags.StringVar(&opts.ProjectKey, "project_key", "", "Project key")
	flags.StringVar(&opts.Host, "host", "", "Jira hostname (or JIRA_HOST)")
	flags.StringVar(&opts.Version, "version", "", "Version name")
	flags.BoolVar(&opts.Release, "release", false, "Release the version")
	flags.BoolVar(&opts.Delete, "delete", false, "Delete the version")
	flags.StringVar(&opts.Report, "report", "", "Write an xlsx report of the version to this path")
	flags.BoolVar(&opts.Notify, "notify", false, "Mail the report with mailgun (requires --report)")
	flags.BoolVar(&opts.NoColor, "no_color", false, "Disable colored output")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errors.Wrap(errUsage, err.Error())
	}

	for name, key := range configEnv {
		if flags.Changed(name) {
			continue
		}
		if value, ok := lookupEnv(key); ok {
			if err := flags.Set(name, value); err != nil {
				return nil, errors.Wrapf(errUsage, "%s: %s", key, err)
			}
		}
	}

	opts.Host = normalizeHost(opts.Host)

	if err := opts.validate(); err != nil {
		return nil, err
	}

	return opts, nil
}

// normalizeHost accepts a pasted URL and keeps only the host part.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("flag"); name != "" {
			return name
		}
		return field.Name
	})
	return v
}

func (opts *Options) validate() error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validating options")
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("--%s is required", fe.Field()))
		case "required_if":
			msgs = append(msgs, fmt.Sprintf("--%s is required when --notify is set", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("--%s has an invalid value %q", fe.Field(), fe.Value()))
		}
	}

	return errors.Wrap(errUsage, strings.Join(msgs, ", "))
}
