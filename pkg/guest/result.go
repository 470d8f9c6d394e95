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

package guest

// ExecutionResult is what a guest run leaves behind for the checks.
type ExecutionResult struct {
	// State is the last observed state, StateUnknown if the guest vanished.
	State State `json:"state"`
	// DidTimeout is set when polling stopped on the deadline rather than on
	// a terminal state.
	DidTimeout bool `json:"didTimeout"`
	// Output is the console text captured while the guest ran.
	Output string `json:"output"`
}
