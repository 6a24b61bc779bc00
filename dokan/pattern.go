// Copyright 2024 The remotefs-fuse Authors. All Rights Reserved.
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

package dokan

import "strings"

// Win32 name-expression metacharacters beyond * and ?, as emitted by the
// kernel for FindFirstFile patterns.
const (
	dosStar = '<' // matches zero or more characters up to the final dot
	dosQM   = '>' // matches one character; skipped at a dot or at the end
	dosDot  = '"' // matches a dot or the end of the name
)

// IsNameInExpression reports whether name matches the Win32 search
// expression, per FsRtlIsNameInExpression semantics.
func IsNameInExpression(expr, name string, ignoreCase bool) bool {
	if ignoreCase {
		expr = strings.ToUpper(expr)
		name = strings.ToUpper(name)
	}
	return matchExpression([]rune(expr), []rune(name))
}

func matchExpression(expr, name []rune) bool {
	if len(expr) == 0 {
		return len(name) == 0
	}

	switch expr[0] {
	case '*':
		for i := 0; i <= len(name); i++ {
			if matchExpression(expr[1:], name[i:]) {
				return true
			}
		}
		return false

	case dosStar:
		// May consume anything before the final dot.
		limit := len(name)
		if i := lastDot(name); i >= 0 {
			limit = i
		}
		for i := 0; i <= limit; i++ {
			if matchExpression(expr[1:], name[i:]) {
				return true
			}
		}
		return false

	case dosQM:
		if len(name) == 0 || name[0] == '.' {
			return matchExpression(expr[1:], name)
		}
		return matchExpression(expr[1:], name[1:])

	case dosDot:
		if len(name) == 0 {
			return matchExpression(expr[1:], name)
		}
		if name[0] == '.' {
			return matchExpression(expr[1:], name[1:])
		}
		return false

	case '?':
		if len(name) == 0 {
			return false
		}
		return matchExpression(expr[1:], name[1:])

	default:
		if len(name) == 0 || expr[0] != name[0] {
			return false
		}
		return matchExpression(expr[1:], name[1:])
	}
}

func lastDot(name []rune) int {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return i
		}
	}
	return -1
}
