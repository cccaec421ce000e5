// Copyright 2024 Google LLC
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

package tools

import (
	"regexp"
	"slices"
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)

// IsValidName reports whether s is a valid tool/toolset/parameter name.
func IsValidName(s string) bool {
	return validName.MatchString(s)
}

// AccessToken is an opaque bearer token forwarded from the MCP client.
// Toolbox itself never validates it; a Source may use it to set a
// session-scoped identity (e.g. `SET ROLE`) when it chooses to.
type AccessToken string

// IsAuthorized reports whether a tool invocation is allowed given the
// set of auth service names already verified by the caller. An empty
// AuthRequired list means the tool has no authorization requirement.
func IsAuthorized(authRequired []string, verifiedAuthServices []string) bool {
	if len(authRequired) == 0 {
		return true
	}
	for _, name := range authRequired {
		if slices.Contains(verifiedAuthServices, name) {
			return true
		}
	}
	return false
}
