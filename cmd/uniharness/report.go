// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/alexandremahdhaoui/uniharness/pkg/reporting"
	"github.com/alexandremahdhaoui/uniharness/pkg/result"
)

// writeReports writes every configured report and the --junit file. A
// failing report does not stop the others.
func writeReports(
	ctx context.Context,
	reporter *reporting.Reporter,
	config *Config,
	o options,
	set *result.Set,
) error {
	log := logr.FromContextOrDiscard(ctx)
	errs := make([]error, 0)

	for _, name := range config.Report.Formats {
		format, err := reporting.ParseFormat(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		path, err := reporter.WriteReport(set, format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info("report written", "format", format, "path", path)
	}

	if o.junit != "" {
		log.Info("writing junit report", "path", o.junit)
		if err := reporter.WriteFile(set, reporting.FormatJUnit, o.junit); err != nil {
			errs = append(errs, err)
		}
	}

	agg := utilerrors.NewAggregate(errs)
	if agg != nil {
		log.Error(agg, "writing reports")
		return agg
	}
	return nil
}
