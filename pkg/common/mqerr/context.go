// Copyright 2024 LunarisDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mqerr

import "context"

var errorContext = context.Background()

// Context returns the context used for errors created on paths that do
// not carry one.  Accounting hot paths are context free, so the shared
// background context keeps construction cheap.
func Context() context.Context {
	return errorContext
}
