/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reporting

import (
	"encoding/json"
	"fmt"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
)

type jsonReport struct {
	*result.Set
	Summary result.Summary `json:"summary"`
}

func formatJSON(set *result.Set) (string, error) {
	data, err := json.MarshalIndent(jsonReport{Set: set, Summary: set.Summary()}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling JSON: %w", err)
	}
	return string(data), nil
}
