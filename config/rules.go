package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/dhcgn/jobmail-export/classifier"
	"github.com/dhcgn/jobmail-export/model"
)

// Rules is the status rule file. Statuses are listed in priority order.
type Rules struct {
	CompanyPattern string             `mapstructure:"company_pattern"`
	Statuses       []model.StatusRule `mapstructure:"statuses"`
}

// ErrNoStatuses is returned for rule files without a statuses list.
var ErrNoStatuses = errors.New("rules file defines no statuses")

// LoadRules reads a YAML rules file. An empty path yields the built-in rules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return Rules{Statuses: classifier.DefaultRules()}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Rules{}, fmt.Errorf("reading rules %s: %w", path, err)
	}

	var rules Rules
	if err := v.Unmarshal(&rules); err != nil {
		return Rules{}, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	if len(rules.Statuses) == 0 {
		return Rules{}, fmt.Errorf("%s: %w", path, ErrNoStatuses)
	}
	return rules, nil
}

// Classifier builds a classifier from the rules.
func (r Rules) Classifier() (*classifier.Classifier, error) {
	var opts []classifier.Option
	if r.CompanyPattern != "" {
		opts = append(opts, classifier.WithCompanyPattern(r.CompanyPattern))
	}
	c, err := classifier.New(r.Statuses, opts...)
	if err != nil {
		return nil, fmt.Errorf("status rules: %w", err)
	}
	return c, nil
}
